// Package repository composes the document store, the normalizer and the
// summary cache into tree and status operations with last-writer-wins
// merging.
//
// Reads degrade instead of failing: an absent, unreadable or corrupt document
// is replaced by its fallback. Only the writes behind SaveTree, ImportTree,
// DeleteTree and SaveStatus report errors.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rogersnm/skillmap/internal/cache"
	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/normalize"
	"github.com/rogersnm/skillmap/internal/store"
	"go.uber.org/zap"
)

type Repository struct {
	docs   store.Store
	cache  *cache.Summaries
	logger *zap.Logger
	now    func() time.Time
	// locks holds a document for a whole read-merge-write, so concurrent
	// callers in this process never write an older winner last.
	locks *store.PathLocks
}

func New(docs store.Store, summaries *cache.Summaries, logger *zap.Logger) *Repository {
	if summaries == nil {
		summaries = cache.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		docs:   docs,
		cache:  summaries,
		logger: logger,
		locks:  store.NewPathLocks(),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	}
}

// treeFallback is the default tree for treeID with the caller's draft, if
// any, normalized over it.
func (r *Repository) treeFallback(treeID string, fallback *model.TreeDraft) model.SkillTree {
	base := model.DefaultTree(treeID, r.now())
	if fallback == nil {
		return base
	}
	return normalize.Tree(*fallback, &base)
}

// readTree loads the stored draft. Read failures are logged and reported as
// absent.
func (r *Repository) readTree(ctx context.Context, treeID string) (*model.TreeDraft, error) {
	var stored model.TreeDraft
	found, err := r.docs.Read(ctx, store.TreePath(treeID), &stored)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("reading tree failed, using fallback", zap.String("tree_id", treeID), zap.Error(err))
		return nil, nil
	}
	if !found {
		return nil, nil
	}
	return &stored, nil
}

// GetTree returns the stored tree normalized against the fallback. When no
// tree is stored, the fallback-derived tree is written and returned.
func (r *Repository) GetTree(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error) {
	treeID = id.Sanitize(treeID)
	fb := r.treeFallback(treeID, fallback)
	defer r.lock(store.TreePath(treeID))()

	stored, err := r.readTree(ctx, treeID)
	if err != nil {
		return model.SkillTree{}, err
	}
	if stored != nil {
		return normalize.Tree(*stored, &fb), nil
	}

	if err := r.docs.Write(ctx, store.TreePath(treeID), fb); err != nil {
		r.logger.Warn("creating tree on read failed", zap.String("tree_id", treeID), zap.Error(err))
		return fb, nil
	}
	r.cache.Upsert(fb.Summary())
	return fb, nil
}

// SaveTree merges incoming with the stored tree by UpdatedAt and persists the
// winner. Versions are not incremented here.
func (r *Repository) SaveTree(ctx context.Context, treeID string, incoming model.TreeDraft) (model.SkillTree, error) {
	treeID = id.Sanitize(treeID)
	base := model.DefaultTree(treeID, r.now())
	normalized := normalize.Tree(incoming, &base)
	normalized.ID = treeID
	defer r.lock(store.TreePath(treeID))()

	stored, err := r.readTree(ctx, treeID)
	if err != nil {
		return model.SkillTree{}, err
	}
	var existing *model.SkillTree
	if stored != nil {
		t := normalize.Tree(*stored, &normalized)
		t.ID = treeID
		existing = &t
	}
	winner := normalize.MergeByUpdatedAt(normalized, existing)

	if err := r.docs.Write(ctx, store.TreePath(treeID), winner); err != nil {
		return model.SkillTree{}, fmt.Errorf("saving tree %s: %w", treeID, err)
	}
	r.cache.Upsert(winner.Summary())
	return winner, nil
}

func (r *Repository) lock(p store.Path) (unlock func()) {
	return r.locks.Lock(p.String())
}

// ExportTree is GetTree without the write on a miss.
func (r *Repository) ExportTree(ctx context.Context, treeID string, fallback *model.TreeDraft) (model.SkillTree, error) {
	treeID = id.Sanitize(treeID)
	fb := r.treeFallback(treeID, fallback)

	stored, err := r.readTree(ctx, treeID)
	if err != nil {
		return model.SkillTree{}, err
	}
	if stored == nil {
		return fb, nil
	}
	return normalize.Tree(*stored, &fb), nil
}

// ImportTree overwrites the stored tree without merging.
func (r *Repository) ImportTree(ctx context.Context, treeID string, tree model.TreeDraft) (model.SkillTree, error) {
	treeID = id.Sanitize(treeID)
	base := model.DefaultTree(treeID, r.now())
	normalized := normalize.Tree(tree, &base)
	normalized.ID = treeID
	defer r.lock(store.TreePath(treeID))()

	if err := r.docs.Write(ctx, store.TreePath(treeID), normalized); err != nil {
		return model.SkillTree{}, fmt.Errorf("importing tree %s: %w", treeID, err)
	}
	r.cache.Upsert(normalized.Summary())
	return normalized, nil
}

// DeleteTree removes the tree and its status. Absent documents are not an
// error; both removals are attempted even if the first fails.
func (r *Repository) DeleteTree(ctx context.Context, treeID string) error {
	treeID = id.Sanitize(treeID)
	defer r.lock(store.TreePath(treeID))()
	defer r.lock(store.StatusPath(treeID))()
	treeErr := r.docs.Remove(ctx, store.TreePath(treeID))
	statusErr := r.docs.Remove(ctx, store.StatusPath(treeID))
	r.cache.Evict(treeID)
	if err := errors.Join(treeErr, statusErr); err != nil {
		return fmt.Errorf("deleting tree %s: %w", treeID, err)
	}
	return nil
}

// ListTrees rebuilds the summary cache from the stored trees and returns it.
// If the directory cannot be enumerated the current cache is returned.
func (r *Repository) ListTrees(ctx context.Context) []model.SkillTreeSummary {
	entries, err := r.docs.List(ctx, store.TreesDir)
	if err != nil {
		r.logger.Warn("listing trees failed, serving cached summaries", zap.Error(err))
		return r.cache.Snapshot()
	}

	items := make([]model.SkillTreeSummary, 0, len(entries))
	for _, e := range entries {
		var draft model.TreeDraft
		if err := json.Unmarshal(e.Content, &draft); err != nil {
			r.logger.Warn("skipping tree that is not an object", zap.String("name", e.Name), zap.Error(err))
			continue
		}
		base := model.DefaultTree(e.Name, r.now())
		summary := normalize.Tree(draft, &base).Summary()
		summary.ID = e.Name
		items = append(items, summary)
	}
	cache.SortNewestFirst(items)
	r.cache.Rebuild(items)
	return items
}

// Summaries serves the cached listing, rebuilding it first when empty.
func (r *Repository) Summaries(ctx context.Context) []model.SkillTreeSummary {
	if r.cache.Len() == 0 {
		return r.ListTrees(ctx)
	}
	return r.cache.Snapshot()
}

// RefreshSummary re-reads one tree into the cache, evicting it when gone.
func (r *Repository) RefreshSummary(ctx context.Context, treeID string) {
	if !id.Valid(treeID) {
		return
	}
	stored, err := r.readTree(ctx, treeID)
	if err != nil {
		return
	}
	if stored == nil {
		r.cache.Evict(treeID)
		return
	}
	base := model.DefaultTree(treeID, r.now())
	summary := normalize.Tree(*stored, &base).Summary()
	summary.ID = treeID
	r.cache.Upsert(summary)
}

func (r *Repository) readStatus(ctx context.Context, treeID string) (*model.StatusDraft, error) {
	var stored model.StatusDraft
	found, err := r.docs.Read(ctx, store.StatusPath(treeID), &stored)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("reading status failed, using fallback", zap.String("tree_id", treeID), zap.Error(err))
		return nil, nil
	}
	if !found {
		return nil, nil
	}
	return &stored, nil
}

// GetStatus mirrors GetTree for the status document.
func (r *Repository) GetStatus(ctx context.Context, treeID string, fallback *model.StatusDraft) (model.SkillStatus, error) {
	treeID = id.Sanitize(treeID)
	defer r.lock(store.StatusPath(treeID))()
	stored, err := r.readStatus(ctx, treeID)
	if err != nil {
		return model.SkillStatus{}, err
	}
	if stored != nil {
		return normalize.Status(treeID, *stored), nil
	}

	var draft model.StatusDraft
	if fallback != nil {
		draft = *fallback
	}
	status := normalize.Status(treeID, draft)
	if err := r.docs.Write(ctx, store.StatusPath(treeID), status); err != nil {
		r.logger.Warn("creating status on read failed", zap.String("tree_id", treeID), zap.Error(err))
	}
	return status, nil
}

// SaveStatus mirrors SaveTree for the status document.
func (r *Repository) SaveStatus(ctx context.Context, treeID string, incoming model.StatusDraft) (model.SkillStatus, error) {
	treeID = id.Sanitize(treeID)
	normalized := normalize.Status(treeID, incoming)
	defer r.lock(store.StatusPath(treeID))()

	stored, err := r.readStatus(ctx, treeID)
	if err != nil {
		return model.SkillStatus{}, err
	}
	var existing *model.SkillStatus
	if stored != nil {
		s := normalize.Status(treeID, *stored)
		existing = &s
	}
	winner := normalize.MergeByUpdatedAt(normalized, existing)

	if err := r.docs.Write(ctx, store.StatusPath(treeID), winner); err != nil {
		return model.SkillStatus{}, fmt.Errorf("saving status %s: %w", treeID, err)
	}
	return winner, nil
}
