package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rogersnm/skillmap/internal/model"
)

// Graph is the prerequisite graph of one skill tree.
type Graph struct {
	nodes map[string]*model.SkillNode
	order map[string]int      // position in the tree's node list
	edges map[string][]string // skill -> prerequisites
	rev   map[string][]string // skill -> skills it unlocks
}

// BuildFromTree indexes tree.Connections. Connections to unknown nodes are
// ignored.
func BuildFromTree(tree model.SkillTree) *Graph {
	g := &Graph{
		nodes: make(map[string]*model.SkillNode, len(tree.Nodes)),
		order: make(map[string]int, len(tree.Nodes)),
		edges: make(map[string][]string),
		rev:   make(map[string][]string),
	}
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if _, dup := g.nodes[n.ID]; dup {
			continue
		}
		g.nodes[n.ID] = n
		g.order[n.ID] = i
	}
	for _, c := range tree.Connections {
		if g.nodes[c.From] == nil || g.nodes[c.To] == nil {
			continue
		}
		g.edges[c.To] = append(g.edges[c.To], c.From)
		g.rev[c.From] = append(g.rev[c.From], c.To)
	}
	return g
}

func (g *Graph) sortByOrder(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return g.order[ids[i]] < g.order[ids[j]] })
}

// ValidateAcyclic checks for cycles using DFS. Returns an error describing
// the cycle path if one exists.
func (g *Graph) ValidateAcyclic() error {
	const (
		white = 0 // unvisited
		gray  = 1 // in current path
		black = 2 // finished
	)

	color := make(map[string]int)
	parent := make(map[string]string)

	var dfs func(node string) error
	dfs = func(node string) error {
		color[node] = gray
		for _, req := range g.edges[node] {
			if color[req] == gray {
				return fmt.Errorf("cycle detected: %s", buildCyclePath(parent, node, req))
			}
			if color[req] == white {
				parent[req] = node
				if err := dfs(req); err != nil {
					return err
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, id := range g.ids() {
		if color[id] == white {
			if err := dfs(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildCyclePath(parent map[string]string, from, to string) string {
	path := []string{to}
	for cur := from; cur != to; cur = parent[cur] {
		path = append(path, cur)
	}
	path = append(path, to)
	// prerequisite first
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, " -> ")
}

// TopologicalSort returns skills with every prerequisite ahead of the skills
// it unlocks, ties broken by tree order.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.edges[id])
	}

	var queue []string
	for _, id := range g.ids() {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, next := range g.rev[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
				g.sortByOrder(queue)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("cycle detected: topological sort incomplete")
	}
	return result, nil
}

// Prerequisites returns every skill id reachable through prerequisites.
func (g *Graph) Prerequisites(id string) []string {
	visited := make(map[string]bool)
	var result []string
	var walk func(string)
	walk = func(node string) {
		for _, req := range g.edges[node] {
			if !visited[req] {
				visited[req] = true
				result = append(result, req)
				walk(req)
			}
		}
	}
	walk(id)
	return result
}

func (g *Graph) Dependents(id string) []string {
	out := append([]string(nil), g.rev[id]...)
	g.sortByOrder(out)
	return out
}

// Roots are skills without prerequisites, in tree order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.ids() {
		if len(g.edges[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

func (g *Graph) Leaves() []string {
	var leaves []string
	for _, id := range g.ids() {
		if len(g.rev[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

func (g *Graph) Node(id string) *model.SkillNode {
	return g.nodes[id]
}

func (g *Graph) ids() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	g.sortByOrder(ids)
	return ids
}

// Satisfied reports whether the prerequisites of id are met by status:
// all of them for AND skills, at least one for OR skills.
func (g *Graph) Satisfied(id string, status model.SkillStatus) bool {
	n := g.nodes[id]
	if n == nil {
		return false
	}
	reqs := g.edges[id]
	if len(reqs) == 0 {
		return true
	}
	met := 0
	for _, req := range reqs {
		if status.IsUnlocked(req) {
			met++
		}
	}
	if n.ReqMode == model.ReqModeOr {
		return met > 0
	}
	return met == len(reqs)
}

// Available lists locked skills whose prerequisites are satisfied and whose
// cost fits the remaining points.
func (g *Graph) Available(status model.SkillStatus) []string {
	var out []string
	for _, id := range g.ids() {
		if status.IsUnlocked(id) {
			continue
		}
		if g.Satisfied(id, status) && g.nodes[id].Cost <= status.AvailablePoints {
			out = append(out, id)
		}
	}
	return out
}
