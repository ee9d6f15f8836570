package markdown

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/rogersnm/skillmap/internal/model"
	"gopkg.in/yaml.v3"
)

// Parse reads YAML frontmatter and body from r into T.
func Parse[T any](r io.Reader) (T, string, error) {
	var meta T
	body, err := frontmatter.Parse(r, &meta)
	if err != nil {
		return meta, "", fmt.Errorf("parsing frontmatter: %w", err)
	}
	return meta, strings.TrimSpace(string(body)), nil
}

// Marshal serializes meta as YAML frontmatter followed by body.
func Marshal[T any](meta T, body string) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yamlBytes)
	buf.WriteString("---\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// ExportTree writes the whole tree as frontmatter and a readable overview as
// the body. Only the frontmatter is read back by ParseTree.
func ExportTree(tree model.SkillTree) ([]byte, error) {
	return Marshal(tree, TreeBody(tree))
}

// ParseTree reads a document written by ExportTree (or edited by hand).
func ParseTree(r io.Reader) (model.SkillTree, error) {
	tree, _, err := Parse[model.SkillTree](r)
	if err != nil {
		return model.SkillTree{}, err
	}
	if tree.ID == "" && tree.Name == "" && len(tree.Nodes) == 0 {
		return model.SkillTree{}, fmt.Errorf("no skill tree frontmatter found")
	}
	return tree, nil
}
