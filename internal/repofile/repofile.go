// Package repofile links a directory tree to a skill tree through a
// .skillmap-tree file, so commands run inside it need no --tree flag.
package repofile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rogersnm/skillmap/internal/id"
)

const FileName = ".skillmap-tree"

// Find walks up from startDir looking for a .skillmap-tree file.
// Returns the tree ID and the directory containing the file.
// Returns ("", "", nil) if not found.
func Find(startDir string) (treeID, dir string, err error) {
	dir = startDir
	for {
		found, err := Read(dir)
		if err != nil {
			return "", "", err
		}
		if found != "" {
			return found, dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", nil
		}
		dir = parent
	}
}

// Write links dir to treeID.
func Write(dir, treeID string) error {
	if !id.Valid(treeID) {
		return fmt.Errorf("invalid tree id %q", treeID)
	}
	return os.WriteFile(filepath.Join(dir, FileName), []byte(treeID+"\n"), 0644)
}

// Read reads and trims the .skillmap-tree file in dir.
// Returns ("", nil) if the file does not exist.
func Read(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	treeID := strings.TrimSpace(string(data))
	if treeID != "" && !id.Valid(treeID) {
		return "", fmt.Errorf("%s: invalid tree id %q", filepath.Join(dir, FileName), treeID)
	}
	return treeID, nil
}

// Remove deletes the link in dir. A missing file is not an error.
func Remove(dir string) error {
	err := os.Remove(filepath.Join(dir, FileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
