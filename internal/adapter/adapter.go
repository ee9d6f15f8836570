// Package adapter is the only entry point into the store from outside the
// process: it decodes command requests, dispatches them to the services and
// answers each with exactly one correlated Response.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rogersnm/skillmap/internal/metrics"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/rpc"
	"github.com/rogersnm/skillmap/internal/service"
	"go.uber.org/zap"
)

type TreeService interface {
	Get(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error)
	Save(ctx context.Context, treeID string, incoming model.TreeDraft) (model.SkillTree, error)
	Export(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error)
	Import(ctx context.Context, treeID string, tree model.TreeDraft) (model.SkillTree, error)
	Delete(ctx context.Context, treeID string) (service.DeleteResult, error)
	List(ctx context.Context) ([]model.SkillTreeSummary, error)
}

type StatusService interface {
	Get(ctx context.Context, treeID string, fallback *model.StatusDraft) (model.SkillStatus, error)
	Save(ctx context.Context, treeID string, incoming model.StatusDraft) (model.SkillStatus, error)
}

// Queue is the request channel the adapter serves in process.
type Queue = rpc.Queue[Request, Response]

func NewQueue(size int) *Queue {
	return rpc.NewQueue[Request, Response](size)
}

type Adapter struct {
	trees    TreeService
	statuses StatusService
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func New(trees TreeService, statuses StatusService, collector *metrics.Collector, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{trees: trees, statuses: statuses, metrics: collector, logger: logger}
}

// Handle answers one request. Protocol failures are answered without
// touching storage; service failures become {ok:false} replies.
func (a *Adapter) Handle(ctx context.Context, req Request) Response {
	cmd, known := ParseCommand(req.Type)
	if !known || req.RequestID == "" {
		err := ErrMissingRequestID
		if !known {
			err = fmt.Errorf("%w %q", ErrUnknownCommand, req.Type)
		}
		a.metrics.StartRequest("invalid")("rejected")
		a.logger.Debug("rejected request",
			zap.String("type", req.Type),
			zap.String("request_id", req.RequestID),
			zap.Error(err))
		return protocolError(req.RequestID, err)
	}

	treeID := req.ResolveTreeID()
	done := a.metrics.StartRequest(cmd.String())
	start := time.Now()

	data, err := a.dispatch(ctx, cmd, treeID, req.Payload)

	a.logger.Debug("handled request",
		zap.Stringer("command", cmd),
		zap.String("tree_id", treeID),
		zap.String("request_id", req.RequestID),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))

	if err != nil {
		done("error")
		return Response{OK: false, Error: err.Error(), RequestID: req.RequestID}
	}
	done("ok")
	return Response{OK: true, Data: data, RequestID: req.RequestID}
}

func (a *Adapter) dispatch(ctx context.Context, cmd Command, treeID string, p Payload) (json.RawMessage, error) {
	var (
		result any
		err    error
	)
	switch cmd {
	case CommandGetStatus:
		result, err = a.statuses.Get(ctx, treeID, statusDraft(p.Fallback))
	case CommandSaveStatus:
		result, err = a.statuses.Save(ctx, treeID, valueOrZero(statusDraft(p.Status)))
	case CommandGetTree:
		result, err = a.trees.Get(ctx, treeID, treeDraft(p.Fallback))
	case CommandSaveTree:
		result, err = a.trees.Save(ctx, treeID, valueOrZero(treeDraft(p.Tree)))
	case CommandExport:
		result, err = a.trees.Export(ctx, treeID, treeDraft(p.Fallback))
	case CommandImport:
		result, err = a.trees.Import(ctx, treeID, valueOrZero(treeDraft(p.Tree)))
	case CommandDeleteTree:
		result, err = a.trees.Delete(ctx, treeID)
	case CommandListTrees:
		var items []model.SkillTreeSummary
		items, err = a.trees.List(ctx)
		if items == nil {
			items = []model.SkillTreeSummary{}
		}
		result = items
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, cmd)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding %s result: %w", cmd, err)
	}
	return data, nil
}

// Serve answers queued calls until ctx is done. Each call runs on its own
// goroutine; Serve returns once every dispatched call has replied.
func (a *Adapter) Serve(ctx context.Context, calls <-chan *rpc.Call[Request, Response]) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case call := <-calls:
			if call == nil {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				call.Reply(a.Handle(call.Ctx, call.Request))
			}()
		}
	}
}
