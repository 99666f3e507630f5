// Package tui is the terminal dashboard: one role, its tabs, and the list
// of the active tab with search and paging.
package tui

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

// eventBuffer bounds the render steps queued ahead of the model.
const eventBuffer = 256

// listState is what one tab shows.
type listState struct {
	state    listing.State
	rows     []dashboard.Row
	controls listing.Controls
	stats    []dashboard.StatValue
	err      string
}

// Model is the bubbletea model of a role dashboard.
type Model struct {
	ctx    context.Context
	role   *dashboard.Role
	board  *dashboard.Board
	events chan tea.Msg

	active int
	lists  map[string]*listState

	search    textinput.Model
	searching bool
	pending   *listing.Task

	status string
	width  int
}

// New builds the model of role. Lists are loaded from fetcher; searches wait
// for debounce of quiet typing.
func New(ctx context.Context, role *dashboard.Role, fetcher listing.Fetcher, debounce time.Duration) *Model {
	events := make(chan tea.Msg, eventBuffer)
	board := dashboard.NewBoard(role, fetcher,
		func(t *dashboard.Tab) listing.Renderer { return &tabRenderer{tab: t, events: events} },
		listing.WithContext(ctx),
		listing.WithDebounce(debounce))

	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "search"
	ti.CharLimit = 128

	m := &Model{
		ctx:    ctx,
		role:   role,
		board:  board,
		events: events,
		lists:  make(map[string]*listState, len(role.Tabs)),
		search: ti,
	}
	for _, tab := range role.Tabs {
		m.lists[tab.ID] = &listState{}
	}
	return m
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	if len(m.role.Tabs) == 0 {
		return nil
	}
	return tea.Batch(m.switchTab(0), waitForEvent(m.events))
}

// Close stops pending searches.
func (m *Model) Close() {
	m.board.Close()
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKeys(msg)
		}
		return m.handleKeys(msg)
	case doneMsg:
		m.handleDone(msg)
		return m, nil
	}

	if m.applyEvent(msg) {
		return m, waitForEvent(m.events)
	}
	return m, nil
}

// applyEvent stores a render step. It reports whether msg was one.
func (m *Model) applyEvent(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case loadingMsg:
		m.list(msg.tab).state = listing.StateLoading
	case itemsMsg:
		l := m.list(msg.tab)
		l.state = listing.StateRendered
		l.rows = msg.rows
		l.err = ""
	case paginationMsg:
		m.list(msg.tab).controls = msg.controls
	case statsMsg:
		m.list(msg.tab).stats = msg.stats
	case errorMsg:
		l := m.list(msg.tab)
		l.state = listing.StateErrored
		l.err = apperr.UserMessage(msg.err)
	default:
		return false
	}
	return true
}

func (m *Model) handleDone(msg doneMsg) {
	switch {
	case msg.err == nil, errors.Is(msg.err, listing.ErrSuperseded):
		m.status = ""
	case apperr.Is(msg.err, apperr.ErrInvalidRequest):
		// Out of range pages never reach the list.
		m.status = apperr.UserMessage(msg.err)
	default:
		m.status = "load failed"
	}
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.Close()
		return m, tea.Quit
	case "tab":
		return m, m.switchTab((m.active + 1) % len(m.role.Tabs))
	case "shift+tab":
		return m, m.switchTab((m.active + len(m.role.Tabs) - 1) % len(m.role.Tabs))
	case "left", "h":
		return m, m.goToPage(-1)
	case "right", "l":
		return m, m.goToPage(+1)
	case "r":
		return m, m.reload()
	case "/":
		m.searching = true
		m.search.SetValue(m.controller().Query().Search)
		m.search.CursorEnd()
		return m, m.search.Focus()
	default:
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(m.role.Tabs) {
			return m, m.switchTab(n - 1)
		}
	}
	return m, nil
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.searching = false
		m.search.Blur()
		return m, nil
	case "ctrl+c":
		m.Close()
		return m, tea.Quit
	}

	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != before {
		m.pending = m.controller().Search(v)
	}
	return m, cmd
}

// switchTab activates tab i and loads its list.
func (m *Model) switchTab(i int) tea.Cmd {
	if i < 0 || i >= len(m.role.Tabs) {
		return nil
	}
	m.active = i
	m.status = ""
	id := m.role.Tabs[i].ID
	return func() tea.Msg {
		return doneMsg{tab: id, err: m.board.Switch(m.ctx, id)}
	}
}

// goToPage moves delta pages from the current one.
func (m *Model) goToPage(delta int) tea.Cmd {
	c := m.controller()
	n := c.Query().Page + delta
	id := m.activeTab().ID
	return func() tea.Msg {
		return doneMsg{tab: id, err: c.GoToPage(m.ctx, n)}
	}
}

func (m *Model) reload() tea.Cmd {
	c := m.controller()
	id := m.activeTab().ID
	return func() tea.Msg {
		return doneMsg{tab: id, err: c.Reload(m.ctx)}
	}
}

func (m *Model) activeTab() *dashboard.Tab {
	return m.role.Tabs[m.active]
}

func (m *Model) controller() *listing.Controller {
	c, _ := m.board.Controller(m.activeTab().ID)
	return c
}

func (m *Model) list(tab string) *listState {
	l, ok := m.lists[tab]
	if !ok {
		l = &listState{}
		m.lists[tab] = l
	}
	return l
}

// Run starts the dashboard of role in the terminal.
func Run(ctx context.Context, role *dashboard.Role, fetcher listing.Fetcher, debounce time.Duration) error {
	m := New(ctx, role, fetcher, debounce)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
