package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// listConcurrency bounds parallel file reads during List.
const listConcurrency = 8

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	BaseDir string
	logger  *zap.Logger
	locks   *PathLocks
}

// compile-time check
var _ Store = (*LocalStore)(nil)

func NewLocal(baseDir string, logger *zap.Logger) *LocalStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{
		BaseDir: baseDir,
		logger:  logger,
		locks:   NewPathLocks(),
	}
}

func (s *LocalStore) DirPath(dir string) string {
	return filepath.Join(s.BaseDir, dir)
}

func (s *LocalStore) FilePath(p Path) string {
	return filepath.Join(s.BaseDir, p.Dir, p.Name+Ext)
}

func (s *LocalStore) Read(ctx context.Context, p Path, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := p.validate(); err != nil {
		return false, err
	}
	unlock := s.locks.Lock(p.String())
	defer unlock()

	data, err := os.ReadFile(s.FilePath(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", p, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("unparseable document, using fallback",
			zap.String("path", p.String()),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *LocalStore) Write(ctx context.Context, p Path, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", p, err)
	}
	data = append(data, '\n')

	unlock := s.locks.Lock(p.String())
	defer unlock()

	dir := s.DirPath(p.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return writeAtomic(s.FilePath(p), data)
}

// writeAtomic writes data to a temp file in the target's directory and
// renames it over the target.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	return nil
}

func (s *LocalStore) Remove(ctx context.Context, p Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	unlock := s.locks.Lock(p.String())
	defer unlock()

	if err := os.Remove(s.FilePath(p)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.DirPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := NameFromFile(e.Name()); ok {
			names = append(names, name)
		}
	}

	results := make([]*Entry, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.readEntry(Path{Dir: dir, Name: name})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// readEntry returns nil, after logging, for entries that vanished, cannot
// be read or are not valid JSON.
func (s *LocalStore) readEntry(p Path) *Entry {
	unlock := s.locks.Lock(p.String())
	defer unlock()

	data, err := os.ReadFile(s.FilePath(p))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("skipping unreadable document", zap.String("path", p.String()), zap.Error(err))
		}
		return nil
	}
	if !json.Valid(data) {
		s.logger.Warn("skipping malformed document", zap.String("path", p.String()))
		return nil
	}
	return &Entry{Name: p.Name, Content: json.RawMessage(data)}
}
