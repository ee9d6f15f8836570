package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type doc struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) (*LocalStore, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	return NewLocal(t.TempDir(), zap.New(core)), logs
}

func TestRead_Missing(t *testing.T) {
	s, _ := newTestStore(t)
	var d doc
	found, err := s.Read(context.Background(), TreePath("t1"), &d)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWrite_Read_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, TreePath("t1"), doc{ID: "t1", Count: 2}))

	var d doc
	found, err := s.Read(ctx, TreePath("t1"), &d)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, doc{ID: "t1", Count: 2}, d)
	assert.FileExists(t, filepath.Join(s.BaseDir, "skill-trees", "t1.json"))
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, s.Write(ctx, StatusPath("t1"), doc{ID: "t1", Count: i}))
	}
	entries, err := os.ReadDir(s.DirPath(StatusesDir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t1.json", entries[0].Name())
}

func TestRead_Malformed(t *testing.T) {
	s, logs := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.DirPath(TreesDir), 0755))
	require.NoError(t, os.WriteFile(s.FilePath(TreePath("bad")), []byte("{not json"), 0644))

	var d doc
	found, err := s.Read(context.Background(), TreePath("bad"), &d)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, logs.FilterMessage("unparseable document, using fallback").Len())
}

func TestInvalidName(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	var d doc
	_, err := s.Read(ctx, TreePath("../evil"), &d)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorIs(t, s.Write(ctx, TreePath("a/b"), d), ErrInvalidName)
	assert.ErrorIs(t, s.Remove(ctx, Path{Dir: "..", Name: "x"}), ErrInvalidName)
}

func TestRemove_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Remove(ctx, TreePath("missing")))

	require.NoError(t, s.Write(ctx, TreePath("t1"), doc{ID: "t1"}))
	require.NoError(t, s.Remove(ctx, TreePath("t1")))
	require.NoError(t, s.Remove(ctx, TreePath("t1")))
	assert.NoFileExists(t, s.FilePath(TreePath("t1")))
}

func TestList(t *testing.T) {
	s, logs := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, s.Write(ctx, TreePath(name), doc{ID: name}))
	}
	dir := s.DirPath(TreesDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".a.json.tmp-123"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0755))

	entries, err := s.List(ctx, TreesDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.JSONEq(t, `{"id":"a","count":0}`, string(entries[0].Content))
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed document").Len())
}

func TestList_MissingDir(t *testing.T) {
	s, _ := newTestStore(t)
	entries, err := s.List(context.Background(), TreesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCanceledContext(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Write(ctx, TreePath("t1"), doc{}), context.Canceled)
	_, err := s.List(ctx, TreesDir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentWrites_SamePath(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Write(ctx, TreePath("t1"), doc{ID: fmt.Sprint(i), Count: i}))
		}()
	}
	wg.Wait()

	var d doc
	found, err := s.Read(ctx, TreePath("t1"), &d)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fmt.Sprint(d.Count), d.ID)
	assert.Equal(t, 0, s.locks.len())
}

func TestNameFromFile(t *testing.T) {
	name, ok := NameFromFile("/x/skill-trees/t1.json")
	assert.True(t, ok)
	assert.Equal(t, "t1", name)

	for _, f := range []string{".t1.json.tmp-1", "t1.txt", "bad name.json", ".json"} {
		_, ok := NameFromFile(f)
		assert.False(t, ok, f)
	}
}
