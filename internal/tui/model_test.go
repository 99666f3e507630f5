package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

// fakeFetcher serves names per endpoint, two per page, filtered by search.
type fakeFetcher struct {
	mu      sync.Mutex
	data    map[string][]string
	fail    map[string]error
	queries []listing.Query
}

func (f *fakeFetcher) FetchPage(_ context.Context, endpoint string, q listing.Query, _, _ string) (*listing.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q.Clone())
	if err := f.fail[endpoint]; err != nil {
		return nil, err
	}

	var names []string
	for _, n := range f.data[endpoint] {
		if q.Search == "" || strings.Contains(strings.ToLower(n), strings.ToLower(q.Search)) {
			names = append(names, n)
		}
	}
	per := q.PageSize
	pages := (len(names) + per - 1) / per
	if pages == 0 {
		pages = 1
	}
	start := (q.Page - 1) * per
	end := start + per
	if end > len(names) {
		end = len(names)
	}
	items := []map[string]any{}
	for i := start; i < end; i++ {
		items = append(items, map[string]any{"id": float64(i + 1), "nom": names[i], "statut": "valide"})
	}
	return &listing.Page{
		Items: items,
		Pagination: listing.Pagination{
			Page: q.Page, PerPage: per, TotalPages: pages, Total: len(names),
			HasPrevious: q.Page > 1, HasNext: q.Page < pages,
		},
		Stats: map[string]int{"total": len(names)},
	}, nil
}

func (f *fakeFetcher) lastQuery() listing.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func testRole() *dashboard.Role {
	return &dashboard.Role{
		Name:  "chef",
		Title: "Chef de service",
		Tabs: []*dashboard.Tab{
			{
				ID: "users", Title: "Users", Noun: "users", Endpoint: "/users/", PageSize: 2,
				Columns: []dashboard.Column{{Key: "$.nom", Title: "Name"}, {Key: "$.statut", Title: "Status", Format: dashboard.ColumnBadge}},
				Stats:   []dashboard.Stat{{Key: "total", Label: "Total"}},
			},
			{
				ID: "logs", Title: "Activity log", Endpoint: "/logs/", PageSize: 2,
				Columns: []dashboard.Column{{Key: "$.nom", Title: "Action"}},
			},
		},
	}
}

func newTestModel(t *testing.T, f *fakeFetcher) *Model {
	t.Helper()
	m := New(context.Background(), testRole(), f, 5*time.Millisecond)
	t.Cleanup(m.Close)
	return m
}

// run executes a command started by a key press and feeds the resulting
// render steps back into the model.
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	m.Update(cmd())
	drain(m)
}

func drain(m *Model) {
	for {
		select {
		case msg := <-m.events:
			m.Update(msg)
		default:
			return
		}
	}
}

func press(m *Model, key string) tea.Cmd {
	var msg tea.KeyMsg
	switch key {
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%d", i+1)
	}
	return out
}

func TestModel_FirstTabLoads(t *testing.T) {
	f := &fakeFetcher{data: map[string][]string{"/users/": names(5)}}
	m := newTestModel(t, f)

	run(t, m, m.switchTab(0))

	l := m.list("users")
	assert.Equal(t, listing.StateRendered, l.state)
	assert.Len(t, l.rows, 2)
	assert.Equal(t, "Page 1 of 3 (5 users)", l.controls.Summary)
	require.Len(t, l.stats, 1)
	assert.Equal(t, 5, l.stats[0].Value)

	view := m.View()
	assert.Contains(t, view, "Chef de service")
	assert.Contains(t, view, "user1")
	assert.Contains(t, view, "Total 5")
	assert.Contains(t, view, "Page 1 of 3")
}

func TestModel_Paging(t *testing.T) {
	f := &fakeFetcher{data: map[string][]string{"/users/": names(5)}}
	m := newTestModel(t, f)
	run(t, m, m.switchTab(0))

	run(t, m, press(m, "right"))
	assert.Equal(t, 2, f.lastQuery().Page)
	assert.Equal(t, "user3", m.list("users").rows[0].Cells[0].Text)

	run(t, m, press(m, "left"))
	assert.Equal(t, 1, f.lastQuery().Page)

	calls := len(f.queries)
	run(t, m, press(m, "left"))
	assert.Len(t, f.queries, calls, "page 0 must not be requested")
	assert.NotEmpty(t, m.status)
	assert.Equal(t, listing.StateRendered, m.list("users").state, "the list keeps its rows")
}

func TestModel_SwitchTabs(t *testing.T) {
	f := &fakeFetcher{data: map[string][]string{"/users/": names(1), "/logs/": {"CONNEXION"}}}
	m := newTestModel(t, f)
	run(t, m, m.switchTab(0))

	run(t, m, press(m, "2"))
	assert.Equal(t, 1, m.active)
	assert.Equal(t, "logs", m.activeTab().ID)
	assert.Contains(t, m.View(), "CONNEXION")

	run(t, m, press(m, "tab"))
	assert.Equal(t, 0, m.active)

	assert.Nil(t, press(m, "9"), "no tab 9")
}

func TestModel_Search(t *testing.T) {
	f := &fakeFetcher{data: map[string][]string{"/users/": {"Awa Diop", "Moussa Fall", "Fatou Ndiaye"}}}
	m := newTestModel(t, f)
	run(t, m, m.switchTab(0))

	press(m, "/")
	require.True(t, m.searching)
	for _, r := range "fa" {
		press(m, string(r))
	}
	// "q" is text while the search box has focus.
	press(m, "q")
	press(m, "enter")
	assert.False(t, m.searching)

	require.NotNil(t, m.pending)
	select {
	case <-m.pending.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("debounced search did not run")
	}
	drain(m)

	assert.Equal(t, "faq", f.lastQuery().Search)
	assert.Equal(t, 1, f.lastQuery().Page)
	assert.Empty(t, m.list("users").rows)
	assert.Contains(t, m.View(), "No records found.")
}

func TestModel_SearchDebounces(t *testing.T) {
	f := &fakeFetcher{data: map[string][]string{"/users/": {"Awa Diop", "Moussa Fall"}}}
	m := newTestModel(t, f)
	run(t, m, m.switchTab(0))
	before := len(f.queries)

	press(m, "/")
	for _, r := range "fall" {
		press(m, string(r))
	}
	<-m.pending.Done()
	drain(m)

	assert.Len(t, f.queries, before+1, "one request for the whole burst")
	assert.Equal(t, "fall", f.lastQuery().Search)
	require.Len(t, m.list("users").rows, 1)
	assert.Equal(t, "Moussa Fall", m.list("users").rows[0].Cells[0].Text)
}

func TestModel_ErrorRow(t *testing.T) {
	f := &fakeFetcher{
		data: map[string][]string{"/users/": names(1)},
		fail: map[string]error{"/logs/": apperr.NewApplicationFailure("Accès refusé", 403)},
	}
	m := newTestModel(t, f)
	run(t, m, m.switchTab(1))

	l := m.list("logs")
	assert.Equal(t, listing.StateErrored, l.state)
	assert.Equal(t, "Accès refusé", l.err)
	assert.Contains(t, m.View(), "Accès refusé")

	delete(f.fail, "/logs/")
	f.data["/logs/"] = []string{"UPLOAD"}
	run(t, m, press(m, "r"))
	assert.Empty(t, m.list("logs").err)
	assert.Contains(t, m.View(), "UPLOAD")
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(t, &fakeFetcher{})
	cmd := press(m, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestCellText(t *testing.T) {
	assert.Equal(t, "a b", cellText("a\n\n b"))
	long := strings.Repeat("x", 60)
	assert.Len(t, []rune(cellText(long)), maxCellWidth)
}
