package markdown

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rogersnm/skillmap/internal/model"
)

var (
	headerRowStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle      = lipgloss.NewStyle()
)

func RenderSummaryTable(items []model.SkillTreeSummary) string {
	if len(items) == 0 {
		return "No skill trees found."
	}
	rows := make([][]string, len(items))
	for i, s := range items {
		rows[i] = []string{s.ID, s.Name, strconv.Itoa(s.NodeCount), s.UpdatedAt.Format("2006-01-02 15:04"), s.SourceURL}
	}
	return renderTable([]string{"ID", "Name", "Skills", "Updated", "Source"}, rows)
}

func RenderNodeTable(tree model.SkillTree, status model.SkillStatus) string {
	if len(tree.Nodes) == 0 {
		return "No skills."
	}
	rows := make([][]string, len(tree.Nodes))
	for i, n := range tree.Nodes {
		rows[i] = []string{n.ID, n.Name, formatCost(n.Cost), requires(n), RenderUnlocked(status.IsUnlocked(n.ID))}
	}
	return renderTable([]string{"ID", "Name", "Cost", "Requires", "State"}, rows)
}

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Headers(headers...).
		Rows(rows...).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerRowStyle
			}
			return cellStyle
		})
	return t.Render()
}
