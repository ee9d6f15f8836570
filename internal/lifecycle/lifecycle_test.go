package lifecycle

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rogersnm/skillmap/internal/cache"
	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/repository"
	"github.com/rogersnm/skillmap/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*repository.Repository, *store.LocalStore, *cache.Summaries) {
	t.Helper()
	docs := store.NewLocal(t.TempDir(), nil)
	summaries := cache.New()
	return repository.New(docs, summaries, nil), docs, summaries
}

func TestActivateCreatesBaseline(t *testing.T) {
	repo, docs, summaries := newTestRepo(t)

	require.NoError(t, Activate(context.Background(), repo, "", nil))

	_, err := os.Stat(docs.FilePath(store.TreePath(id.DefaultTreeID)))
	require.NoError(t, err)
	require.Equal(t, 1, summaries.Len())
	assert.Equal(t, id.DefaultTreeID, summaries.Snapshot()[0].ID)
}

func TestActivateConfiguredTree(t *testing.T) {
	repo, _, summaries := newTestRepo(t)
	_, err := repo.GetTree(context.Background(), "existing", nil)
	require.NoError(t, err)

	require.NoError(t, Activate(context.Background(), repo, "my-tree", nil))
	assert.Equal(t, 2, summaries.Len())
}

type brokenRepo struct{ Repository }

func (brokenRepo) GetTree(context.Context, string, *model.TreeDraft) (model.SkillTree, error) {
	return model.SkillTree{}, errors.New("store offline")
}

func TestActivateError(t *testing.T) {
	err := Activate(context.Background(), brokenRepo{}, "t1", nil)
	assert.ErrorContains(t, err, "ensuring baseline tree t1")
}

func TestRefresherAppliesEvents(t *testing.T) {
	repo, docs, summaries := newTestRepo(t)
	ctx := context.Background()

	// another process writes t1 without touching our cache
	other := repository.New(docs, cache.New(), nil)
	_, err := other.GetTree(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summaries.Len())

	events := make(chan model.Event, 4)
	r := NewRefresher(repo, nil)
	done := make(chan struct{})
	go func() {
		r.Run(ctx, events)
		close(done)
	}()

	events <- model.Event{Type: model.EventStatusUpdated, TreeID: "t1"}
	events <- model.Event{Type: model.EventTreeUpdated, TreeID: "t1"}
	require.Eventually(t, func() bool { return summaries.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, other.DeleteTree(ctx, "t1"))
	events <- model.Event{Type: model.EventTreeDeleted, TreeID: "t1"}
	close(events)
	<-done
	assert.Equal(t, 0, summaries.Len())
}
