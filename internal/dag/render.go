package dag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rogersnm/skillmap/internal/model"
)

var (
	unlockedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	availableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")) // white
	lockedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // grey
)

func skillState(g *Graph, id string, status model.SkillStatus) (string, lipgloss.Style) {
	switch {
	case status.IsUnlocked(id):
		return "unlocked", unlockedStyle
	case g.Satisfied(id, status):
		return "available", availableStyle
	default:
		return "locked", lockedStyle
	}
}

// RenderASCII draws the skill tree from its roots, each skill under the
// skills that unlock it. A skill reachable from several parents is drawn
// once and referenced afterwards.
func RenderASCII(g *Graph, status model.SkillStatus) string {
	if len(g.nodes) == 0 {
		return "No skills."
	}

	roots := g.Roots()
	if len(roots) == 0 {
		return "No root skills (every skill has prerequisites)."
	}

	visited := make(map[string]bool)
	var sb strings.Builder

	for i, root := range roots {
		if i > 0 {
			sb.WriteString("\n")
		}
		renderNode(&sb, g, root, "", true, visited, status)
	}

	return sb.String()
}

func label(n *model.SkillNode, state string) string {
	text := fmt.Sprintf("%s %s (cost %s) [%s]", n.ID, n.Name, strconv.FormatFloat(n.Cost, 'f', -1, 64), state)
	if n.ReqMode == model.ReqModeOr {
		text += " any-of"
	}
	return text
}

func renderNode(sb *strings.Builder, g *Graph, id, prefix string, isLast bool, visited map[string]bool, status model.SkillStatus) {
	n := g.nodes[id]
	if n == nil {
		return
	}

	connector := "├── "
	if isLast {
		connector = "└── "
	}
	if prefix == "" {
		connector = ""
	}

	state, style := skillState(g, id, status)
	text := style.Render(label(n, state))

	if visited[id] {
		sb.WriteString(prefix + connector + text + " (see above)\n")
		return
	}
	visited[id] = true

	sb.WriteString(prefix + connector + text + "\n")

	children := g.Dependents(id)

	childPrefix := prefix
	if prefix == "" {
		childPrefix = "    "
	} else if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}

	for i, child := range children {
		renderNode(sb, g, child, childPrefix, i == len(children)-1, visited, status)
	}
}
