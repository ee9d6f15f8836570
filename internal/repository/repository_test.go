package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rogersnm/skillmap/internal/cache"
	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

// faultyStore wraps a LocalStore and fails selected operations.
type faultyStore struct {
	*store.LocalStore
	readErr, writeErr, removeErr, listErr error
}

func (f *faultyStore) Read(ctx context.Context, p store.Path, dst any) (bool, error) {
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.LocalStore.Read(ctx, p, dst)
}

func (f *faultyStore) Write(ctx context.Context, p store.Path, v any) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.LocalStore.Write(ctx, p, v)
}

func (f *faultyStore) Remove(ctx context.Context, p store.Path) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.LocalStore.Remove(ctx, p)
}

func (f *faultyStore) List(ctx context.Context, dir string) ([]store.Entry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.LocalStore.List(ctx, dir)
}

// gatedStore holds every read until a second read arrives (or a short
// timeout passes) and slows down writes of trees named "older".
type gatedStore struct {
	*store.LocalStore
	mu       sync.Mutex
	reads    int
	bothRead chan struct{}
}

func (g *gatedStore) Read(ctx context.Context, p store.Path, dst any) (bool, error) {
	found, err := g.LocalStore.Read(ctx, p, dst)
	g.mu.Lock()
	g.reads++
	if g.reads == 2 {
		close(g.bothRead)
	}
	g.mu.Unlock()
	select {
	case <-g.bothRead:
	case <-time.After(100 * time.Millisecond):
	}
	return found, err
}

func (g *gatedStore) Write(ctx context.Context, p store.Path, v any) error {
	if tree, ok := v.(model.SkillTree); ok && tree.Name == "older" {
		time.Sleep(50 * time.Millisecond)
	}
	return g.LocalStore.Write(ctx, p, v)
}

func newTestRepo(t *testing.T) (*Repository, *faultyStore, *cache.Summaries) {
	t.Helper()
	docs := &faultyStore{LocalStore: store.NewLocal(t.TempDir(), nil)}
	c := cache.New()
	r := New(docs, c, nil)
	r.now = func() time.Time { return t1 }
	return r, docs, c
}

func draftAt(treeID string, at time.Time, nodes ...string) model.TreeDraft {
	d := model.TreeDraft{
		ID:        model.Some(treeID),
		Name:      model.Some("Tree " + treeID),
		UpdatedAt: model.Some(at.Format(time.RFC3339)),
	}
	var nds []model.NodeDraft
	for _, n := range nodes {
		nds = append(nds, model.NodeDraft{ID: model.Some(n)})
	}
	d.Nodes = model.Some(nds)
	return d
}

func TestGetTree_TouchCreate(t *testing.T) {
	r, docs, c := newTestRepo(t)
	ctx := context.Background()

	tree, err := r.GetTree(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", tree.ID)
	assert.Empty(t, tree.Nodes)
	assert.Equal(t, 1, tree.Version)
	assert.FileExists(t, docs.FilePath(store.TreePath("t1")))
	assert.Equal(t, 1, c.Len())

	again, err := r.GetTree(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, tree, again)
}

func TestGetTree_FallbackSeedsNewTree(t *testing.T) {
	r, _, _ := newTestRepo(t)
	fb := draftAt("t1", t0, "a", "b")
	fb.Nodes.Value[1].Reqs = []string{"a"}

	tree, err := r.GetTree(context.Background(), "t1", &fb)
	require.NoError(t, err)
	assert.Equal(t, "Tree t1", tree.Name)
	assert.Len(t, tree.Nodes, 2)
	assert.Equal(t, []model.SkillConnection{{From: "a", To: "b"}}, tree.Connections)
	assert.Equal(t, t0, tree.UpdatedAt)
}

func TestGetTree_StoredWinsOverFallback(t *testing.T) {
	r, _, _ := newTestRepo(t)
	ctx := context.Background()
	_, err := r.SaveTree(ctx, "t1", draftAt("t1", t0, "x"))
	require.NoError(t, err)

	fb := draftAt("t1", t1, "a", "b")
	tree, err := r.GetTree(ctx, "t1", &fb)
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, "x", tree.Nodes[0].ID)
}

func TestGetTree_SanitizesID(t *testing.T) {
	r, docs, _ := newTestRepo(t)
	tree, err := r.GetTree(context.Background(), "../evil", nil)
	require.NoError(t, err)
	assert.Equal(t, id.DefaultTreeID, tree.ID)
	assert.FileExists(t, docs.FilePath(store.TreePath(id.DefaultTreeID)))
}

func TestGetTree_CorruptFileUsesFallback(t *testing.T) {
	r, docs, _ := newTestRepo(t)
	require.NoError(t, os.MkdirAll(docs.DirPath(store.TreesDir), 0755))
	require.NoError(t, os.WriteFile(docs.FilePath(store.TreePath("t1")), []byte("{oops"), 0644))

	tree, err := r.GetTree(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", tree.ID)
	assert.Equal(t, model.DefaultTreeName, tree.Name)
}

func TestGetTree_DegradesOnStoreFailure(t *testing.T) {
	r, docs, _ := newTestRepo(t)
	docs.readErr = errors.New("disk gone")
	docs.writeErr = errors.New("disk gone")

	tree, err := r.GetTree(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", tree.ID)
}

func TestSaveTree_OlderWriteDoesNotRegress(t *testing.T) {
	r, _, _ := newTestRepo(t)
	ctx := context.Background()

	newer, err := r.SaveTree(ctx, "t1", draftAt("t1", t1, "new"))
	require.NoError(t, err)
	assert.Equal(t, t1, newer.UpdatedAt)

	got, err := r.SaveTree(ctx, "t1", draftAt("t1", t0, "old"))
	require.NoError(t, err)
	assert.Equal(t, t1, got.UpdatedAt)
	assert.Equal(t, "new", got.Nodes[0].ID)

	stored, err := r.ExportTree(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, t1, stored.UpdatedAt)
	assert.Equal(t, "new", stored.Nodes[0].ID)
}

func TestSaveTree_ConcurrentSavesKeepNewer(t *testing.T) {
	docs := &gatedStore{LocalStore: store.NewLocal(t.TempDir(), nil), bothRead: make(chan struct{})}
	r := New(docs, cache.New(), nil)
	ctx := context.Background()

	newer := draftAt("t1", t1, "a")
	newer.Name = model.Some("newer")
	older := draftAt("t1", t0, "a")
	older.Name = model.Some("older")

	var wg sync.WaitGroup
	for _, d := range []model.TreeDraft{newer, older} {
		wg.Add(1)
		go func(d model.TreeDraft) {
			defer wg.Done()
			_, err := r.SaveTree(ctx, "t1", d)
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	stored, err := r.ExportTree(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "newer", stored.Name)
	assert.Equal(t, t1, stored.UpdatedAt)
}

func TestSaveTree_IDFollowsPath(t *testing.T) {
	r, docs, c := newTestRepo(t)
	ctx := context.Background()

	got, err := r.SaveTree(ctx, "a", draftAt("b", t0, "x"))
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].ID)

	imported, err := r.ImportTree(ctx, "c", draftAt("d", t0))
	require.NoError(t, err)
	assert.Equal(t, "c", imported.ID)

	require.NoError(t, r.DeleteTree(ctx, "a"))
	require.NoError(t, r.DeleteTree(ctx, "c"))
	assert.Empty(t, c.Snapshot())

	// A stored document whose id disagrees with its file is listed by file name.
	require.NoError(t, docs.Write(ctx, store.TreePath("e"), map[string]any{"id": "other"}))
	items := r.ListTrees(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "e", items[0].ID)
}

func TestSaveTree_EqualTimestampIncomingWins(t *testing.T) {
	r, _, _ := newTestRepo(t)
	ctx := context.Background()
	_, err := r.SaveTree(ctx, "t1", draftAt("t1", t0, "first"))
	require.NoError(t, err)
	got, err := r.SaveTree(ctx, "t1", draftAt("t1", t0, "second"))
	require.NoError(t, err)
	assert.Equal(t, "second", got.Nodes[0].ID)
}

func TestSaveTree_DoesNotBumpVersion(t *testing.T) {
	r, _, _ := newTestRepo(t)
	d := draftAt("t1", t0)
	d.Version = model.Some(4.0)
	got, err := r.SaveTree(context.Background(), "t1", d)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Version)
}

func TestSaveTree_UpdatesCache(t *testing.T) {
	r, _, c := newTestRepo(t)
	_, err := r.SaveTree(context.Background(), "t1", draftAt("t1", t0, "a", "b"))
	require.NoError(t, err)
	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 2, snap[0].NodeCount)
}

func TestSaveTree_WriteFailurePropagates(t *testing.T) {
	r, docs, c := newTestRepo(t)
	docs.writeErr = errors.New("read-only filesystem")
	_, err := r.SaveTree(context.Background(), "t1", draftAt("t1", t0))
	assert.ErrorContains(t, err, "read-only filesystem")
	assert.Equal(t, 0, c.Len())
}

func TestExportTree_NoWriteOnMiss(t *testing.T) {
	r, docs, _ := newTestRepo(t)
	tree, err := r.ExportTree(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", tree.ID)
	assert.NoFileExists(t, docs.FilePath(store.TreePath("t1")))
}

func TestImportTree_OverwritesNewer(t *testing.T) {
	r, _, c := newTestRepo(t)
	ctx := context.Background()
	_, err := r.SaveTree(ctx, "t1", draftAt("t1", t1, "new"))
	require.NoError(t, err)

	imported, err := r.ImportTree(ctx, "t1", draftAt("t1", t0, "old"))
	require.NoError(t, err)
	assert.Equal(t, t0, imported.UpdatedAt)

	stored, err := r.ExportTree(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "old", stored.Nodes[0].ID)
	assert.Equal(t, t0, c.Snapshot()[0].UpdatedAt)
}

func TestImportTree_WriteFailurePropagates(t *testing.T) {
	r, docs, _ := newTestRepo(t)
	docs.writeErr = errors.New("quota exceeded")
	_, err := r.ImportTree(context.Background(), "t1", draftAt("t1", t0))
	assert.Error(t, err)
}

func TestDeleteTree(t *testing.T) {
	r, docs, c := newTestRepo(t)
	ctx := context.Background()
	_, err := r.GetTree(ctx, "t1", nil)
	require.NoError(t, err)
	_, err = r.GetStatus(ctx, "t1", nil)
	require.NoError(t, err)

	require.NoError(t, r.DeleteTree(ctx, "t1"))
	assert.NoFileExists(t, docs.FilePath(store.TreePath("t1")))
	assert.NoFileExists(t, docs.FilePath(store.StatusPath("t1")))
	assert.Equal(t, 0, c.Len())
}

func TestDeleteTree_Missing(t *testing.T) {
	r, _, _ := newTestRepo(t)
	assert.NoError(t, r.DeleteTree(context.Background(), "missing-id"))
}

func TestDeleteTree_StoreFailure(t *testing.T) {
	r, docs, _ := newTestRepo(t)
	docs.removeErr = errors.New("permission denied")
	assert.ErrorContains(t, r.DeleteTree(context.Background(), "t1"), "permission denied")
}

func TestListTrees(t *testing.T) {
	r, docs, c := newTestRepo(t)
	ctx := context.Background()
	_, err := r.SaveTree(ctx, "old", draftAt("old", t0, "a"))
	require.NoError(t, err)
	_, err = r.SaveTree(ctx, "new", draftAt("new", t1, "a", "b"))
	require.NoError(t, err)

	dir := docs.DirPath(store.TreesDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "array.json"), []byte("[1]"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bare.json"), []byte(`{"name":"Bare"}`), 0644))

	c.Upsert(model.SkillTreeSummary{ID: "stale"})
	items := r.ListTrees(ctx)

	var got []string
	for _, it := range items {
		got = append(got, it.ID)
	}
	// bare.json has no timestamp and takes now (t1); ties sort by id
	assert.Equal(t, []string{"bare", "new", "old"}, got)
	assert.Equal(t, 2, items[1].NodeCount)
	assert.Equal(t, items, c.Snapshot())
}

func TestListTrees_FallsBackToCache(t *testing.T) {
	r, docs, c := newTestRepo(t)
	c.Upsert(model.SkillTreeSummary{ID: "cached", UpdatedAt: t0})
	docs.listErr = errors.New("enumeration failed")

	items := r.ListTrees(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, "cached", items[0].ID)
}

func TestSummaries_LazyRebuild(t *testing.T) {
	r, docs, c := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, docs.Write(ctx, store.TreePath("t1"), map[string]any{"id": "t1"}))

	items := r.Summaries(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, docs.Write(ctx, store.TreePath("t2"), map[string]any{"id": "t2"}))
	assert.Len(t, r.Summaries(ctx), 1, "non-empty cache is served as is")
}

func TestRefreshSummary(t *testing.T) {
	r, docs, c := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, docs.Write(ctx, store.TreePath("t1"), map[string]any{"id": "t1", "name": "Fresh"}))

	r.RefreshSummary(ctx, "t1")
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "Fresh", c.Snapshot()[0].Name)

	require.NoError(t, docs.Remove(ctx, store.TreePath("t1")))
	r.RefreshSummary(ctx, "t1")
	assert.Equal(t, 0, c.Len())

	r.RefreshSummary(ctx, "../bad")
	assert.Equal(t, 0, c.Len())
}

func TestGetStatus_CreatesFromFallback(t *testing.T) {
	r, docs, _ := newTestRepo(t)
	fb := model.StatusDraft{AvailablePoints: model.Some(7.0), UnlockedSkillIDs: model.Some([]string{"a"})}

	status, err := r.GetStatus(context.Background(), "t1", &fb)
	require.NoError(t, err)
	assert.Equal(t, "t1", status.TreeID)
	assert.Equal(t, 7.0, status.AvailablePoints)
	assert.Equal(t, []string{"a"}, status.UnlockedSkillIDs)

	data, err := os.ReadFile(docs.FilePath(store.StatusPath("t1")))
	require.NoError(t, err)
	var onDisk model.SkillStatus
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, 7.0, onDisk.AvailablePoints)
}

func TestGetStatus_Defaults(t *testing.T) {
	r, _, _ := newTestRepo(t)
	status, err := r.GetStatus(context.Background(), "bad id!", nil)
	require.NoError(t, err)
	assert.Equal(t, id.DefaultTreeID, status.TreeID)
	assert.Equal(t, float64(model.DefaultPoints), status.AvailablePoints)
	assert.Empty(t, status.UnlockedSkillIDs)
}

func TestSaveStatus_Merge(t *testing.T) {
	r, _, _ := newTestRepo(t)
	ctx := context.Background()
	newer := model.StatusDraft{AvailablePoints: model.Some(1.0), UpdatedAt: model.Some(t1.Format(time.RFC3339))}
	older := model.StatusDraft{AvailablePoints: model.Some(9.0), UpdatedAt: model.Some(t0.Format(time.RFC3339))}

	_, err := r.SaveStatus(ctx, "t1", newer)
	require.NoError(t, err)
	got, err := r.SaveStatus(ctx, "t1", older)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.AvailablePoints)

	stored, err := r.GetStatus(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.AvailablePoints)
	assert.Equal(t, t1, stored.UpdatedAt)
}

func TestSaveStatus_WriteFailurePropagates(t *testing.T) {
	r, docs, _ := newTestRepo(t)
	docs.writeErr = errors.New("no space left")
	_, err := r.SaveStatus(context.Background(), "t1", model.StatusDraft{})
	assert.Error(t, err)
}
