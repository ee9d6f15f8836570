// Package cache holds the in-memory summary index used for listing trees.
// It is a derived view and never a source of truth.
package cache

import (
	"sort"
	"sync"

	"github.com/rogersnm/skillmap/internal/model"
)

type Summaries struct {
	mu    sync.RWMutex
	items map[string]model.SkillTreeSummary
}

func New() *Summaries {
	return &Summaries{items: make(map[string]model.SkillTreeSummary)}
}

// Rebuild replaces the whole index.
func (c *Summaries) Rebuild(items []model.SkillTreeSummary) {
	next := make(map[string]model.SkillTreeSummary, len(items))
	for _, it := range items {
		next[it.ID] = it
	}
	c.mu.Lock()
	c.items = next
	c.mu.Unlock()
}

func (c *Summaries) Upsert(item model.SkillTreeSummary) {
	c.mu.Lock()
	c.items[item.ID] = item
	c.mu.Unlock()
}

func (c *Summaries) Evict(treeID string) {
	c.mu.Lock()
	delete(c.items, treeID)
	c.mu.Unlock()
}

func (c *Summaries) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Snapshot returns a copy of the index, newest first.
func (c *Summaries) Snapshot() []model.SkillTreeSummary {
	c.mu.RLock()
	out := make([]model.SkillTreeSummary, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	c.mu.RUnlock()
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders by UpdatedAt descending, ties by id.
func SortNewestFirst(items []model.SkillTreeSummary) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
