package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReqMode(t *testing.T) {
	assert.Equal(t, ReqModeOr, ParseReqMode("or"))
	assert.Equal(t, ReqModeAnd, ParseReqMode("and"))
	assert.Equal(t, ReqModeAnd, ParseReqMode("OR"))
	assert.Equal(t, ReqModeAnd, ParseReqMode(""))
}

func TestOptional(t *testing.T) {
	var o Optional[string]
	_, ok := o.Get()
	assert.False(t, ok)
	assert.Equal(t, "def", o.Or("def"))

	o = Some("x")
	v, ok := o.Get()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.Equal(t, "x", o.Or("def"))
}

func TestTreeDraft_UnmarshalJSON_Lenient(t *testing.T) {
	input := `{
		"id": 42,
		"name": "  Tree  ",
		"version": "3",
		"updatedAt": "2025-01-02T03:04:05Z",
		"nodes": [
			{"id": "a", "x": "1.5", "y": null, "cost": "abc", "reqs": ["b", 7, "c"], "reqMode": "or"},
			null,
			"junk"
		],
		"connections": "not-a-list"
	}`
	var d TreeDraft
	require.NoError(t, json.Unmarshal([]byte(input), &d))

	assert.False(t, d.ID.Set, "non-string id is absent")
	assert.Equal(t, Some("  Tree  "), d.Name)
	assert.Equal(t, Some(3.0), d.Version)
	assert.Equal(t, Some("2025-01-02T03:04:05Z"), d.UpdatedAt)

	require.True(t, d.Nodes.Set)
	require.Len(t, d.Nodes.Value, 3)
	a := d.Nodes.Value[0]
	assert.Equal(t, Some("a"), a.ID)
	assert.Equal(t, Some(1.5), a.X)
	assert.False(t, a.Y.Set)
	assert.False(t, a.Cost.Set)
	assert.Equal(t, []string{"b", "c"}, a.Reqs)
	assert.Equal(t, "or", a.ReqMode)
	assert.False(t, d.Nodes.Value[1].ID.Set)
	assert.False(t, d.Nodes.Value[2].ID.Set)

	assert.True(t, d.Connections.Set)
	assert.Empty(t, d.Connections.Value)
}

func TestTreeDraft_UnmarshalJSON_NullMembersAreAbsent(t *testing.T) {
	var d TreeDraft
	require.NoError(t, json.Unmarshal([]byte(`{"nodes": null, "name": null}`), &d))
	assert.False(t, d.Nodes.Set)
	assert.False(t, d.Name.Set)
}

func TestTreeDraft_UnmarshalJSON_NonObject(t *testing.T) {
	var d TreeDraft
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &d))
}

func TestStatusDraft_UnmarshalJSON(t *testing.T) {
	var s StatusDraft
	require.NoError(t, json.Unmarshal([]byte(`{"availablePoints": "5", "unlockedSkillIds": ["a", "", 3]}`), &s))
	assert.False(t, s.AvailablePoints.Set, "numeric strings are not points")
	assert.Equal(t, Some([]string{"a", ""}), s.UnlockedSkillIDs)

	require.NoError(t, json.Unmarshal([]byte(`{"availablePoints": 0}`), &s))
	assert.Equal(t, Some(0.0), s.AvailablePoints)
	assert.False(t, s.UnlockedSkillIDs.Set)
}

func TestSkillTree_Touch(t *testing.T) {
	tree := DefaultTree("t1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	later := time.Date(2025, 1, 2, 0, 0, 0, 123456789, time.UTC)
	tree.Touch(later)
	assert.Equal(t, 2, tree.Version)
	assert.Equal(t, later.Truncate(time.Millisecond), tree.UpdatedAt)
}

func TestSkillTree_Validate(t *testing.T) {
	tree := SkillTree{
		ID:      "t1",
		Version: 1,
		Nodes:   []SkillNode{{ID: "a"}, {ID: "b"}},
		Connections: []SkillConnection{
			{From: "a", To: "b"},
		},
	}
	assert.NoError(t, tree.Validate())

	tree.Connections = append(tree.Connections, SkillConnection{From: "a", To: "zz"})
	assert.Error(t, tree.Validate())

	tree.Connections = []SkillConnection{{From: "a", To: "a"}}
	assert.Error(t, tree.Validate())

	tree.Connections = nil
	tree.Nodes = append(tree.Nodes, SkillNode{ID: "a"})
	assert.Error(t, tree.Validate())
}

func TestSkillTree_DraftRoundTrip(t *testing.T) {
	tree := SkillTree{
		ID:          "t1",
		Name:        "T",
		Nodes:       []SkillNode{{ID: "a", Name: "A", Reqs: []string{}, ReqMode: ReqModeAnd}},
		Connections: []SkillConnection{},
		UpdatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:     4,
		SourceURL:   "https://example.com/t1.json",
	}
	d := tree.Draft()
	assert.Equal(t, Some("t1"), d.ID)
	assert.Equal(t, Some(4.0), d.Version)
	assert.Equal(t, Some("https://example.com/t1.json"), d.SourceURL)
	assert.False(t, d.SourceEtag.Set)
	require.Len(t, d.Nodes.Value, 1)
	assert.Equal(t, Some("A"), d.Nodes.Value[0].Name)
}

func TestSkillTree_Summary(t *testing.T) {
	tree := SkillTree{ID: "t1", Name: "T", Nodes: []SkillNode{{ID: "a"}, {ID: "b"}}, SourceURL: "u"}
	s := tree.Summary()
	assert.Equal(t, "t1", s.ID)
	assert.Equal(t, 2, s.NodeCount)
	assert.Equal(t, "u", s.SourceURL)
}
