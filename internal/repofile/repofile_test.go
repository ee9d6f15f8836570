package repofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, "magic-tree"))

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "magic-tree", got)
}

func TestWrite_InvalidID(t *testing.T) {
	assert.Error(t, Write(t.TempDir(), "../evil"))
}

func TestRead_Missing(t *testing.T) {
	got, err := Read(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRead_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("  magic \n\n"), 0644))

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, "magic", got)
}

func TestRead_InvalidContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not/a/tree\n"), 0644))

	_, err := Read(dir)
	assert.Error(t, err)
}

func TestFind_ParentDir(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "sub", "deep")
	require.NoError(t, os.MkdirAll(child, 0755))
	require.NoError(t, Write(parent, "magic"))

	found, foundDir, err := Find(child)
	require.NoError(t, err)
	assert.Equal(t, "magic", found)
	assert.Equal(t, parent, foundDir)
}

func TestFind_NotFound(t *testing.T) {
	found, foundDir, err := Find(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Empty(t, foundDir)
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, "magic"))
	require.NoError(t, Remove(dir))
	require.NoError(t, Remove(dir))

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Empty(t, got)
}
