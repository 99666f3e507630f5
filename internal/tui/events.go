package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

// Render steps of a list controller, delivered to the model as messages.
type loadingMsg struct{ tab string }

type itemsMsg struct {
	tab  string
	rows []dashboard.Row
}

type paginationMsg struct {
	tab      string
	controls listing.Controls
}

type statsMsg struct {
	tab   string
	stats []dashboard.StatValue
}

type errorMsg struct {
	tab string
	err error
}

// doneMsg reports the end of a command started by a key press.
type doneMsg struct {
	tab string
	err error
}

// tabRenderer forwards the render steps of one tab to the event channel.
// Rows are mapped here so the model only stores display values.
type tabRenderer struct {
	tab    *dashboard.Tab
	events chan<- tea.Msg
}

func (r *tabRenderer) RenderLoading() {
	r.events <- loadingMsg{tab: r.tab.ID}
}

func (r *tabRenderer) RenderItems(items []map[string]any) {
	r.events <- itemsMsg{tab: r.tab.ID, rows: r.tab.Rows(items)}
}

func (r *tabRenderer) RenderPagination(c listing.Controls) {
	r.events <- paginationMsg{tab: r.tab.ID, controls: c}
}

func (r *tabRenderer) RenderStats(stats map[string]int) {
	r.events <- statsMsg{tab: r.tab.ID, stats: r.tab.StatValues(stats)}
}

func (r *tabRenderer) RenderError(err error) {
	r.events <- errorMsg{tab: r.tab.ID, err: err}
}

// waitForEvent blocks until the next render step arrives.
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}
