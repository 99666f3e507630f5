package web

import (
	"net/url"
	"strconv"
	"sync"

	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

// FilterView is one filter control with its current value.
type FilterView struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Options []string `json:"options,omitempty"`
	Value   string   `json:"value,omitempty"`
}

// ListView is what one list shows after a load.
type ListView struct {
	State    string                `json:"state"`
	Headers  []string              `json:"headers"`
	Rows     []dashboard.Row       `json:"rows"`
	Controls listing.Controls      `json:"pagination"`
	Stats    []dashboard.StatValue `json:"stats,omitempty"`
	Error    string                `json:"error,omitempty"`

	Search      string             `json:"search,omitempty"`
	SearchParam string             `json:"-"`
	Filters     []FilterView       `json:"filters,omitempty"`
	Actions     []dashboard.Action `json:"-"`
	Path        string             `json:"-"`

	query listing.Query
}

// Empty reports a successful load without records.
func (v ListView) Empty() bool {
	return v.State == listing.StateRendered.String() && len(v.Rows) == 0
}

// ColumnCount is the width of the table including the actions column.
func (v ListView) ColumnCount() int {
	n := len(v.Headers)
	if len(v.Actions) > 0 {
		n++
	}
	return n
}

// PageURL returns the list URL for page n with the current filters and search.
func (v ListView) PageURL(n int) string {
	q := v.query.Clone()
	q.Page = n
	vals := q.Values(v.SearchParam)
	vals.Del("per_page")
	return v.Path + "?" + vals.Encode()
}

// ActionURL returns the route running an action on one record.
func (v ListView) ActionURL(action, id string) string {
	return v.Path + "/actions/" + url.PathEscape(action) + "/" + url.PathEscape(id)
}

// listView collects the render steps of a controller into a ListView.
type listView struct {
	mu  sync.Mutex
	tab *dashboard.Tab
	out ListView
}

func newListView(tab *dashboard.Tab, path string, q listing.Query) *listView {
	v := &listView{tab: tab}
	v.out = ListView{
		State:       listing.StateIdle.String(),
		Headers:     tab.Headers(),
		Rows:        []dashboard.Row{},
		Search:      q.Search,
		SearchParam: tab.SearchParam,
		Actions:     tab.Actions,
		Path:        path,
		query:       q,
	}
	for _, f := range tab.Filters {
		v.out.Filters = append(v.out.Filters, FilterView{
			Name: f.Name, Label: f.Label, Options: f.Options, Value: q.Filters[f.Name],
		})
	}
	return v
}

func (v *listView) RenderLoading() {
	v.mu.Lock()
	v.out.State = listing.StateLoading.String()
	v.mu.Unlock()
}

func (v *listView) RenderItems(items []map[string]any) {
	v.mu.Lock()
	v.out.State = listing.StateRendered.String()
	v.out.Rows = v.tab.Rows(items)
	v.mu.Unlock()
}

func (v *listView) RenderPagination(c listing.Controls) {
	v.mu.Lock()
	v.out.Controls = c
	v.mu.Unlock()
}

func (v *listView) RenderStats(stats map[string]int) {
	v.mu.Lock()
	v.out.Stats = v.tab.StatValues(stats)
	v.mu.Unlock()
}

func (v *listView) RenderError(err error) {
	v.mu.Lock()
	v.out.State = listing.StateErrored.String()
	v.out.Error = apperr.UserMessage(err)
	v.mu.Unlock()
}

func (v *listView) view() ListView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.out
}

// queryFrom reads page, filters and search from the request URL. Only the
// tab's declared filters are kept.
func queryFrom(tab *dashboard.Tab, vals url.Values) listing.Query {
	q := listing.NewQuery(tab.PageSize)
	if n, err := strconv.Atoi(vals.Get("page")); err == nil && n > 0 {
		q.Page = n
	}
	for _, f := range tab.Filters {
		if v := vals.Get(f.Name); v != "" {
			q.Filters[f.Name] = v
		}
	}
	q.Search = vals.Get(tab.SearchParam)
	return q
}
