package model

import (
	"fmt"
	"time"
)

// DefaultTreeName is used when neither the payload nor the fallback names a tree.
const DefaultTreeName = "Skill Tree"

type ReqMode string

const (
	ReqModeAnd ReqMode = "and"
	ReqModeOr  ReqMode = "or"
)

// ParseReqMode maps a raw wire value to a ReqMode. Anything other than
// exactly "or" selects AND.
func ParseReqMode(s string) ReqMode {
	if s == string(ReqModeOr) {
		return ReqModeOr
	}
	return ReqModeAnd
}

type SkillNode struct {
	ID          string   `json:"id" yaml:"id"`
	X           float64  `json:"x" yaml:"x"`
	Y           float64  `json:"y" yaml:"y"`
	Name        string   `json:"name" yaml:"name"`
	Cost        float64  `json:"cost" yaml:"cost"`
	Description string   `json:"description" yaml:"description,omitempty"`
	Reqs        []string `json:"reqs" yaml:"reqs,flow"`
	ReqMode     ReqMode  `json:"reqMode" yaml:"req_mode"`
}

// SkillConnection is a directed edge: From is a prerequisite of To.
type SkillConnection struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

type SkillTree struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Nodes       []SkillNode       `json:"nodes" yaml:"nodes"`
	Connections []SkillConnection `json:"connections" yaml:"connections"`
	UpdatedAt   time.Time         `json:"updatedAt" yaml:"updated_at"`
	Version     int               `json:"version" yaml:"version"`
	SourceURL   string            `json:"sourceUrl,omitempty" yaml:"source_url,omitempty"`
	SourceEtag  string            `json:"sourceEtag,omitempty" yaml:"source_etag,omitempty"`
}

func (t SkillTree) Stamp() time.Time { return t.UpdatedAt }

// Validate checks what every normalized tree satisfies.
func (t *SkillTree) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("tree id is required")
	}
	if t.Version < 1 {
		return fmt.Errorf("tree %s: version must be >= 1, got %d", t.ID, t.Version)
	}
	seen := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.ID == "" {
			return fmt.Errorf("tree %s: node id is required", t.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("tree %s: duplicate node %q", t.ID, n.ID)
		}
		if n.Cost < 0 {
			return fmt.Errorf("tree %s: node %q has negative cost", t.ID, n.ID)
		}
		seen[n.ID] = true
	}
	edges := make(map[SkillConnection]bool, len(t.Connections))
	for _, c := range t.Connections {
		if c.From == c.To {
			return fmt.Errorf("tree %s: self-loop on %q", t.ID, c.From)
		}
		if !seen[c.From] || !seen[c.To] {
			return fmt.Errorf("tree %s: connection %s -> %s references a missing node", t.ID, c.From, c.To)
		}
		if edges[c] {
			return fmt.Errorf("tree %s: duplicate connection %s -> %s", t.ID, c.From, c.To)
		}
		edges[c] = true
	}
	return nil
}

// Touch bumps the version and sets UpdatedAt. Callers use it before saving
// an edited tree; the store itself never increments versions.
func (t *SkillTree) Touch(now time.Time) {
	if t.Version < 1 {
		t.Version = 1
	}
	t.Version++
	t.UpdatedAt = now.UTC().Truncate(time.Millisecond)
}

// Node returns the node with the given id, or nil.
func (t *SkillTree) Node(id string) *SkillNode {
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			return &t.Nodes[i]
		}
	}
	return nil
}

// Draft converts a complete tree back into a partial document with every
// field set.
func (t SkillTree) Draft() TreeDraft {
	nodes := make([]NodeDraft, len(t.Nodes))
	for i, n := range t.Nodes {
		nodes[i] = n.Draft()
	}
	conns := make([]ConnectionDraft, len(t.Connections))
	for i, c := range t.Connections {
		conns[i] = ConnectionDraft{From: Some(c.From), To: Some(c.To)}
	}
	d := TreeDraft{
		ID:          Some(t.ID),
		Name:        Some(t.Name),
		Nodes:       Some(nodes),
		Connections: Some(conns),
		UpdatedAt:   Some(t.UpdatedAt.Format(time.RFC3339Nano)),
		Version:     Some(float64(t.Version)),
	}
	if t.SourceURL != "" {
		d.SourceURL = Some(t.SourceURL)
	}
	if t.SourceEtag != "" {
		d.SourceEtag = Some(t.SourceEtag)
	}
	return d
}

func (n SkillNode) Draft() NodeDraft {
	return NodeDraft{
		ID:          Some(n.ID),
		X:           Some(n.X),
		Y:           Some(n.Y),
		Name:        Some(n.Name),
		Cost:        Some(n.Cost),
		Description: Some(n.Description),
		Reqs:        append([]string(nil), n.Reqs...),
		ReqMode:     string(n.ReqMode),
	}
}

// SkillTreeSummary is the listing projection of a tree.
type SkillTreeSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
	NodeCount int       `json:"nodeCount"`
	SourceURL string    `json:"sourceUrl,omitempty"`
}

// Summary derives the listing projection of t.
func (t SkillTree) Summary() SkillTreeSummary {
	return SkillTreeSummary{
		ID:        t.ID,
		Name:      t.Name,
		UpdatedAt: t.UpdatedAt,
		NodeCount: len(t.Nodes),
		SourceURL: t.SourceURL,
	}
}

// DefaultTree is the baseline document for id.
func DefaultTree(id string, now time.Time) SkillTree {
	return SkillTree{
		ID:          id,
		Name:        DefaultTreeName,
		Nodes:       []SkillNode{},
		Connections: []SkillConnection{},
		UpdatedAt:   now.UTC().Truncate(time.Millisecond),
		Version:     1,
	}
}
