package store

import (
	"context"
	"encoding/json"
)

// Store is byte-level document persistence keyed by Path. LocalStore
// implements it on the filesystem.
type Store interface {
	// Read decodes the document at p into dst. It reports false, with a nil
	// error, when the document is absent or does not parse.
	Read(ctx context.Context, p Path, dst any) (bool, error)

	// Write replaces the document at p. Readers observe either the old or
	// the new content, never a partial write.
	Write(ctx context.Context, p Path, v any) error

	// Remove deletes the document at p. Removing an absent document succeeds.
	Remove(ctx context.Context, p Path) error

	// List returns every well-formed document in dir, ordered by name.
	List(ctx context.Context, dir string) ([]Entry, error)
}

// Entry is one listed document.
type Entry struct {
	Name    string
	Content json.RawMessage
}
