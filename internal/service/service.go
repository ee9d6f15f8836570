// Package service wraps the repository one to one and announces successful
// mutations through a notify.Publisher.
package service

import (
	"context"
	"time"

	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/notify"
	"go.uber.org/zap"
)

type TreeRepository interface {
	GetTree(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error)
	SaveTree(ctx context.Context, treeID string, incoming model.TreeDraft) (model.SkillTree, error)
	ExportTree(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error)
	ImportTree(ctx context.Context, treeID string, tree model.TreeDraft) (model.SkillTree, error)
	DeleteTree(ctx context.Context, treeID string) error
	ListTrees(ctx context.Context) []model.SkillTreeSummary
}

type StatusRepository interface {
	GetStatus(ctx context.Context, treeID string, fallback *model.StatusDraft) (model.SkillStatus, error)
	SaveStatus(ctx context.Context, treeID string, incoming model.StatusDraft) (model.SkillStatus, error)
}

// DeleteResult is the reply body of a tree deletion.
type DeleteResult struct {
	OK bool `json:"ok"`
}

// announcer publishes events and swallows failures.
type announcer struct {
	events notify.Publisher
	logger *zap.Logger
}

func newAnnouncer(events notify.Publisher, logger *zap.Logger) announcer {
	if events == nil {
		events = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return announcer{events: events, logger: logger}
}

func (a announcer) announce(ctx context.Context, typ model.EventType, treeID string, at time.Time) {
	ev := model.Event{Type: typ, TreeID: treeID, UpdatedAt: at}
	if err := a.events.Publish(ctx, ev); err != nil {
		a.logger.Debug("notification not delivered",
			zap.String("type", string(typ)),
			zap.String("tree_id", treeID),
			zap.Error(err))
	}
}

type TreeService struct {
	repo TreeRepository
	announcer
	now func() time.Time
}

func NewTreeService(repo TreeRepository, events notify.Publisher, logger *zap.Logger) *TreeService {
	return &TreeService{
		repo:      repo,
		announcer: newAnnouncer(events, logger),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	}
}

func (s *TreeService) Get(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error) {
	return s.repo.GetTree(ctx, treeID, fallback)
}

func (s *TreeService) Save(ctx context.Context, treeID string, incoming model.TreeDraft) (model.SkillTree, error) {
	tree, err := s.repo.SaveTree(ctx, treeID, incoming)
	if err != nil {
		return model.SkillTree{}, err
	}
	s.announce(ctx, model.EventTreeUpdated, id.Sanitize(treeID), tree.UpdatedAt)
	return tree, nil
}

func (s *TreeService) Export(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error) {
	return s.repo.ExportTree(ctx, treeID, fallback)
}

func (s *TreeService) Import(ctx context.Context, treeID string, tree model.TreeDraft) (model.SkillTree, error) {
	imported, err := s.repo.ImportTree(ctx, treeID, tree)
	if err != nil {
		return model.SkillTree{}, err
	}
	s.announce(ctx, model.EventTreeUpdated, id.Sanitize(treeID), imported.UpdatedAt)
	return imported, nil
}

func (s *TreeService) Delete(ctx context.Context, treeID string) (DeleteResult, error) {
	if err := s.repo.DeleteTree(ctx, treeID); err != nil {
		return DeleteResult{}, err
	}
	s.announce(ctx, model.EventTreeDeleted, id.Sanitize(treeID), s.now())
	return DeleteResult{OK: true}, nil
}

func (s *TreeService) List(ctx context.Context) ([]model.SkillTreeSummary, error) {
	return s.repo.ListTrees(ctx), nil
}

type StatusService struct {
	repo StatusRepository
	announcer
}

func NewStatusService(repo StatusRepository, events notify.Publisher, logger *zap.Logger) *StatusService {
	return &StatusService{repo: repo, announcer: newAnnouncer(events, logger)}
}

func (s *StatusService) Get(ctx context.Context, treeID string, fallback *model.StatusDraft) (model.SkillStatus, error) {
	return s.repo.GetStatus(ctx, treeID, fallback)
}

func (s *StatusService) Save(ctx context.Context, treeID string, incoming model.StatusDraft) (model.SkillStatus, error) {
	status, err := s.repo.SaveStatus(ctx, treeID, incoming)
	if err != nil {
		return model.SkillStatus{}, err
	}
	s.announce(ctx, model.EventStatusUpdated, status.TreeID, status.UpdatedAt)
	return status, nil
}
