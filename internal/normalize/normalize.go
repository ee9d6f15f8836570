// Package normalize turns partial, possibly malformed documents into valid
// trees and statuses. Nothing here fails: bad input is dropped or defaulted.
package normalize

import (
	"math"
	"strings"
	"time"

	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/model"
)

// now is replaced in tests.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 timestamps and their common zone-less variants
// (read as UTC).
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), true
		}
	}
	return time.Time{}, false
}

// UpdatedAt returns the parsed value, else fallback when non-zero, else now.
func UpdatedAt(value model.Optional[string], fallback time.Time) time.Time {
	if s, ok := value.Get(); ok {
		if t, ok := ParseTime(s); ok {
			return t
		}
	}
	if !fallback.IsZero() {
		return fallback.UTC().Truncate(time.Millisecond)
	}
	return now()
}

// Version returns value when it is an integer >= 1, else fallback when that
// is >= 1, else 1.
func Version(value model.Optional[float64], fallback int) int {
	if v, ok := value.Get(); ok && v >= 1 && v == math.Trunc(v) && v <= math.MaxInt32 {
		return int(v)
	}
	if fallback >= 1 {
		return fallback
	}
	return 1
}

func finiteOr(v model.Optional[float64], def float64) float64 {
	f, ok := v.Get()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// trimmedOr returns the trimmed value when non-empty, else def.
func trimmedOr(v model.Optional[string], def string) string {
	if s, ok := v.Get(); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return def
}

// Nodes keeps entries with a non-empty id in first-seen order, dropping later
// duplicates, and canonicalizes every field.
func Nodes(raw []model.NodeDraft) []model.SkillNode {
	seen := make(map[string]bool, len(raw))
	nodes := make([]model.SkillNode, 0, len(raw))
	for _, d := range raw {
		nodeID := trimmedOr(d.ID, "")
		if nodeID == "" || seen[nodeID] {
			continue
		}
		seen[nodeID] = true
		nodes = append(nodes, model.SkillNode{
			ID:          nodeID,
			X:           finiteOr(d.X, 0),
			Y:           finiteOr(d.Y, 0),
			Name:        trimmedOr(d.Name, nodeID),
			Cost:        math.Max(0, finiteOr(d.Cost, 0)),
			Description: strings.TrimSpace(d.Description.Value),
			Reqs:        reqs(d.Reqs),
			ReqMode:     model.ParseReqMode(d.ReqMode),
		})
	}
	return nodes
}

func reqs(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// Connections merges the explicit edges with the edges implied by each
// node's reqs. Explicit edges come first; self-loops, edges with an unknown
// endpoint and repeated pairs are dropped.
func Connections(nodes []model.SkillNode, raw []model.ConnectionDraft) []model.SkillConnection {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}

	candidates := make([]model.SkillConnection, 0, len(raw))
	for _, c := range raw {
		candidates = append(candidates, model.SkillConnection{From: c.From.Value, To: c.To.Value})
	}
	for _, n := range nodes {
		for _, req := range n.Reqs {
			candidates = append(candidates, model.SkillConnection{From: req, To: n.ID})
		}
	}

	seen := make(map[model.SkillConnection]bool, len(candidates))
	conns := make([]model.SkillConnection, 0, len(candidates))
	for _, c := range candidates {
		if c.From == "" || c.To == "" || c.From == c.To {
			continue
		}
		if !ids[c.From] || !ids[c.To] || seen[c] {
			continue
		}
		seen[c] = true
		conns = append(conns, c)
	}
	return conns
}

// Tree builds a complete tree from payload, taking every absent or invalid
// field from fallback. A nil fallback means the default tree.
func Tree(payload model.TreeDraft, fallback *model.SkillTree) model.SkillTree {
	var fb model.SkillTree
	if fallback != nil {
		fb = *fallback
	} else {
		fb = model.DefaultTree(id.DefaultTreeID, now())
	}

	var nodes []model.SkillNode
	if raw, ok := payload.Nodes.Get(); ok {
		nodes = Nodes(raw)
	} else {
		nodes = Nodes(fb.Draft().Nodes.Value)
	}

	var rawConns []model.ConnectionDraft
	if raw, ok := payload.Connections.Get(); ok {
		rawConns = raw
	} else {
		rawConns = fb.Draft().Connections.Value
	}

	return model.SkillTree{
		ID:          trimmedOr(payload.ID, fb.ID),
		Name:        trimmedOr(payload.Name, fb.Name),
		Nodes:       nodes,
		Connections: Connections(nodes, rawConns),
		UpdatedAt:   UpdatedAt(payload.UpdatedAt, fb.UpdatedAt),
		Version:     Version(payload.Version, fb.Version),
		SourceURL:   trimmedOr(payload.SourceURL, fb.SourceURL),
		SourceEtag:  trimmedOr(payload.SourceEtag, fb.SourceEtag),
	}
}

// Status builds a complete status for treeID. The tree id is sanitized; an
// absent point balance becomes model.DefaultPoints.
func Status(treeID string, payload model.StatusDraft) model.SkillStatus {
	points := float64(model.DefaultPoints)
	if p, ok := payload.AvailablePoints.Get(); ok && !math.IsNaN(p) {
		points = p
	}
	raw, _ := payload.UnlockedSkillIDs.Get()
	unlocked := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" || seen[s] {
			continue
		}
		seen[s] = true
		unlocked = append(unlocked, s)
	}
	return model.SkillStatus{
		TreeID:           id.Sanitize(treeID),
		AvailablePoints:  points,
		UnlockedSkillIDs: unlocked,
		UpdatedAt:        UpdatedAt(payload.UpdatedAt, time.Time{}),
	}
}

// Stamped is a document carrying a last-modified timestamp.
type Stamped interface {
	Stamp() time.Time
}

// MergeByUpdatedAt picks incoming unless existing is present and strictly
// newer. The loser is discarded whole; fields are never mixed.
func MergeByUpdatedAt[T Stamped](incoming T, existing *T) T {
	if existing == nil {
		return incoming
	}
	if incoming.Stamp().Before((*existing).Stamp()) {
		return *existing
	}
	return incoming
}
