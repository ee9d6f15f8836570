package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// TreeDraft is a partially specified tree as received from a caller or read
// back from disk. Absent fields are defaulted by the normalizer.
type TreeDraft struct {
	ID          Optional[string]
	Name        Optional[string]
	Nodes       Optional[[]NodeDraft]
	Connections Optional[[]ConnectionDraft]
	UpdatedAt   Optional[string]
	Version     Optional[float64]
	SourceURL   Optional[string]
	SourceEtag  Optional[string]
}

type NodeDraft struct {
	ID          Optional[string]
	X           Optional[float64]
	Y           Optional[float64]
	Name        Optional[string]
	Cost        Optional[float64]
	Description Optional[string]
	Reqs        []string
	ReqMode     string
}

type ConnectionDraft struct {
	From Optional[string]
	To   Optional[string]
}

// StatusDraft is a partially specified status document.
type StatusDraft struct {
	AvailablePoints  Optional[float64]
	UnlockedSkillIDs Optional[[]string]
	UpdatedAt        Optional[string]
}

// UnmarshalJSON decodes leniently: wrongly typed fields are treated as
// absent instead of failing the whole document. Only a non-object top level
// is an error.
func (d *TreeDraft) UnmarshalJSON(data []byte) error {
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	*d = TreeDraft{
		ID:         looseString(fields["id"]),
		Name:       looseString(fields["name"]),
		UpdatedAt:  looseString(fields["updatedAt"]),
		Version:    looseNumber(fields["version"]),
		SourceURL:  looseString(fields["sourceUrl"]),
		SourceEtag: looseString(fields["sourceEtag"]),
	}
	if items, ok := looseArray(fields["nodes"]); ok {
		nodes := make([]NodeDraft, 0, len(items))
		for _, raw := range items {
			var n NodeDraft
			// A non-object entry decodes to an empty draft, which the
			// normalizer drops for lack of an id.
			_ = n.UnmarshalJSON(raw)
			nodes = append(nodes, n)
		}
		d.Nodes = Some(nodes)
	}
	if items, ok := looseArray(fields["connections"]); ok {
		conns := make([]ConnectionDraft, 0, len(items))
		for _, raw := range items {
			var c ConnectionDraft
			_ = c.UnmarshalJSON(raw)
			conns = append(conns, c)
		}
		d.Connections = Some(conns)
	}
	return nil
}

func (n *NodeDraft) UnmarshalJSON(data []byte) error {
	*n = NodeDraft{}
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	n.ID = looseString(fields["id"])
	n.X = looseNumber(fields["x"])
	n.Y = looseNumber(fields["y"])
	n.Name = looseString(fields["name"])
	n.Cost = looseNumber(fields["cost"])
	n.Description = looseString(fields["description"])
	n.Reqs = stringItems(fields["reqs"])
	n.ReqMode = looseString(fields["reqMode"]).Value
	return nil
}

func (c *ConnectionDraft) UnmarshalJSON(data []byte) error {
	*c = ConnectionDraft{}
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	c.From = looseString(fields["from"])
	c.To = looseString(fields["to"])
	return nil
}

func (s *StatusDraft) UnmarshalJSON(data []byte) error {
	fields, err := objectFields(data)
	if err != nil {
		return err
	}
	*s = StatusDraft{UpdatedAt: looseString(fields["updatedAt"])}
	var points float64
	if raw := fields["availablePoints"]; isNumber(raw) && json.Unmarshal(raw, &points) == nil {
		s.AvailablePoints = Some(points)
	}
	if _, ok := looseArray(fields["unlockedSkillIds"]); ok {
		s.UnlockedSkillIDs = Some(stringItems(fields["unlockedSkillIds"]))
	}
	return nil
}

// objectFields splits a JSON object into raw members. null yields an empty map.
func objectFields(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isNumber(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	c := trimmed[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func looseString(raw json.RawMessage) Optional[string] {
	if isNull(raw) {
		return None[string]()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return None[string]()
	}
	return Some(s)
}

// looseNumber accepts JSON numbers and strings holding a finite number.
func looseNumber(raw json.RawMessage) Optional[float64] {
	if isNull(raw) {
		return None[float64]()
	}
	var f float64
	if isNumber(raw) {
		if err := json.Unmarshal(raw, &f); err != nil {
			return None[float64]()
		}
		return Some(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return None[float64]()
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return None[float64]()
	}
	return Some(f)
}

// looseArray reports ok for any non-null value; values that are not arrays
// yield no items.
func looseArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if isNull(raw) {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, true
	}
	return items, true
}

func stringItems(raw json.RawMessage) []string {
	items, _ := looseArray(raw)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := looseString(item).Get(); ok {
			out = append(out, s)
		}
	}
	return out
}
