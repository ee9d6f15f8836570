package markdown

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rogersnm/skillmap/internal/model"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unlockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	out, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}

func RenderField(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func RenderUnlocked(unlocked bool) string {
	if unlocked {
		return unlockedStyle.Render("unlocked")
	}
	return lockedStyle.Render("locked")
}

func RenderHeader(title string, fields []string) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n")
	for _, f := range fields {
		sb.WriteString("  " + f + "\n")
	}
	return sb.String()
}

func formatCost(cost float64) string {
	return strconv.FormatFloat(cost, 'f', -1, 64)
}

func requires(n model.SkillNode) string {
	if len(n.Reqs) == 0 {
		return "-"
	}
	sep := ", "
	if n.ReqMode == model.ReqModeOr {
		sep = " or "
	}
	return strings.Join(n.Reqs, sep)
}

// TreeBody renders a markdown overview of the tree: a skill table followed by
// one section per described skill.
func TreeBody(tree model.SkillTree) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", tree.Name)
	if len(tree.Nodes) == 0 {
		sb.WriteString("_No skills yet._\n")
		return sb.String()
	}

	sb.WriteString("| Skill | Name | Cost | Requires |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, n := range tree.Nodes {
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", n.ID, escapeCell(n.Name), formatCost(n.Cost), requires(n))
	}

	for _, n := range tree.Nodes {
		if n.Description == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", n.Name, n.Description)
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
