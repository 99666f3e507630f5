package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("8"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Underline(true)
	statStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)

	toneStyles = map[string]lipgloss.Style{
		"success": lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("10")),
		"danger":  lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("9")),
		"warning": lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("11")),
	}
)

// maxCellWidth truncates long values such as email bodies.
const maxCellWidth = 40

// View implements tea.Model
func (m *Model) View() string {
	if len(m.role.Tabs) == 0 {
		return "No tabs configured for " + m.role.Name + "\n"
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.role.Title))
	b.WriteString("\n")
	b.WriteString(m.tabBar())
	b.WriteString("\n\n")

	tab := m.activeTab()
	l := m.list(tab.ID)

	if m.searching {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	} else if q := m.controller().Query(); q.Search != "" {
		b.WriteString(dimStyle.Render("search: " + q.Search))
		b.WriteString("\n")
	}

	if len(l.stats) > 0 {
		parts := make([]string, len(l.stats))
		for i, s := range l.stats {
			parts[i] = fmt.Sprintf("%s %d", s.Label, s.Value)
		}
		b.WriteString(statStyle.Render(strings.Join(parts, "  ·  ")))
		b.WriteString("\n")
	}

	b.WriteString(renderTable(tab, l))
	b.WriteString("\n")

	if l.controls.Visible() {
		b.WriteString(l.controls.Summary)
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(errorStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("1-9/tab switch · ←/→ page · / search · r reload · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) tabBar() string {
	tabs := make([]string, len(m.role.Tabs))
	for i, t := range m.role.Tabs {
		label := fmt.Sprintf("%d %s", i+1, t.Title)
		if i == m.active {
			tabs[i] = activeTabStyle.Render(label)
		} else {
			tabs[i] = tabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// renderTable draws the list region: a loading line, the error row, the
// empty row, or the records.
func renderTable(tab *dashboard.Tab, l *listState) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(tab.Headers()...)

	switch {
	case l.err != "":
		return t.Render() + "\n" + errorStyle.Render(l.err)
	case l.state == listing.StateIdle, l.state == listing.StateLoading && l.rows == nil:
		return t.Render() + "\n" + dimStyle.Render("Loading...")
	case len(l.rows) == 0:
		return t.Render() + "\n" + dimStyle.Render("No records found.")
	}

	tones := make([][]string, len(l.rows))
	for i, row := range l.rows {
		cells := make([]string, len(row.Cells))
		tones[i] = make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = cellText(c.Text)
			tones[i][j] = c.Tone
		}
		t.Row(cells...)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if row >= 0 && row < len(tones) && col < len(tones[row]) {
			if s, ok := toneStyles[tones[row][col]]; ok {
				return s
			}
		}
		return cellStyle
	})
	return t.Render()
}

func cellText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxCellWidth {
		return string(r[:maxCellWidth-3]) + "..."
	}
	return s
}
