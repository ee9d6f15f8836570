// Package lifecycle prepares a store for serving and keeps its summary cache
// in step with change notifications.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/model"
	"go.uber.org/zap"
)

type Repository interface {
	GetTree(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error)
	ListTrees(ctx context.Context) []model.SkillTreeSummary
}

// Activate makes sure the baseline tree exists and primes the summary cache.
func Activate(ctx context.Context, repo Repository, defaultTreeID string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	treeID := id.Sanitize(defaultTreeID)
	if _, err := repo.GetTree(ctx, treeID, nil); err != nil {
		return fmt.Errorf("ensuring baseline tree %s: %w", treeID, err)
	}
	items := repo.ListTrees(ctx)
	logger.Info("store activated", zap.String("default_tree", treeID), zap.Int("trees", len(items)))
	return nil
}

// SummaryRefresher re-reads one tree into the listing cache.
type SummaryRefresher interface {
	RefreshSummary(ctx context.Context, treeID string)
}

// Refresher applies tree events to the summary cache.
type Refresher struct {
	repo   SummaryRefresher
	logger *zap.Logger
}

func NewRefresher(repo SummaryRefresher, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{repo: repo, logger: logger}
}

// Run consumes events until ctx is done or events is closed.
func (r *Refresher) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Apply(ctx, ev)
		}
	}
}

// Apply handles a single event. Status events do not affect summaries.
func (r *Refresher) Apply(ctx context.Context, ev model.Event) {
	switch ev.Type {
	case model.EventTreeUpdated, model.EventTreeDeleted:
		r.logger.Debug("refreshing summary",
			zap.String("type", string(ev.Type)),
			zap.String("tree_id", ev.TreeID))
		r.repo.RefreshSummary(ctx, ev.TreeID)
	}
}
