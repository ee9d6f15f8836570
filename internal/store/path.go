package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rogersnm/skillmap/internal/id"
)

const (
	TreesDir    = "skill-trees"
	StatusesDir = "statuses"
	Ext         = ".json"
)

var ErrInvalidName = errors.New("invalid document name")

// Path addresses one document: <Dir>/<Name>.json under the store root.
type Path struct {
	Dir  string
	Name string
}

func TreePath(treeID string) Path {
	return Path{Dir: TreesDir, Name: treeID}
}

func StatusPath(treeID string) Path {
	return Path{Dir: StatusesDir, Name: treeID}
}

func (p Path) String() string {
	return p.Dir + "/" + p.Name + Ext
}

func (p Path) validate() error {
	if !id.Valid(p.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, p.Name)
	}
	if p.Dir == "" || strings.ContainsAny(p.Dir, `/\`) || p.Dir == "." || p.Dir == ".." {
		return fmt.Errorf("%w: directory %q", ErrInvalidName, p.Dir)
	}
	return nil
}

// NameFromFile returns the document name for a file name such as "t1.json",
// or false when the file is not a document (wrong suffix, temp file).
func NameFromFile(file string) (string, bool) {
	base := filepath.Base(file)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, Ext) {
		return "", false
	}
	name := strings.TrimSuffix(base, Ext)
	return name, id.Valid(name)
}
