package listing

import (
	"context"
	"errors"
	"sync"
	"time"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
)

// DefaultSearchDebounce is the quiet period before a search reloads.
const DefaultSearchDebounce = 500 * time.Millisecond

// ErrSuperseded is returned by Reload when a newer request was issued before
// the response arrived; the response was discarded.
var ErrSuperseded = errors.New("listing: response superseded by a newer request")

// State is the lifecycle of one list.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateRendered
	StateErrored
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateRendered:
		return "rendered"
	case StateErrored:
		return "errored"
	default:
		return "idle"
	}
}

// Fetcher loads one page of an endpoint. *Client implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, endpoint string, q Query, itemsPath, searchParam string) (*Page, error)
}

// Renderer receives the independent render steps of a list.
type Renderer interface {
	RenderLoading()
	RenderItems(items []map[string]any)
	RenderPagination(c Controls)
	RenderStats(stats map[string]int)
	// RenderError replaces the item region with an error row. Pagination and
	// stats keep whatever they showed.
	RenderError(err error)
}

// Source describes the endpoint a list reads.
type Source struct {
	Endpoint    string
	ItemsPath   string
	SearchParam string
	PageSize    int
	Noun        string
}

// Controller owns the query and the last page of one list.
type Controller struct {
	fetcher   Fetcher
	source    Source
	view      Renderer
	debouncer *Debouncer
	baseCtx   context.Context

	mu    sync.Mutex
	query Query
	page  *Page
	state State
	seq   uint64

	// renderMu keeps the staleness check and the render steps of one
	// response together.
	renderMu sync.Mutex
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithDebounce sets the search quiet period.
func WithDebounce(d time.Duration) ControllerOption {
	return func(c *Controller) { c.debouncer = NewDebouncer(d) }
}

// WithQuery sets the initial query (filters from a URL, a remembered page).
func WithQuery(q Query) ControllerOption {
	return func(c *Controller) { c.query = q.Clone() }
}

// WithContext sets the context used by debounced reloads.
func WithContext(ctx context.Context) ControllerOption {
	return func(c *Controller) { c.baseCtx = ctx }
}

// NewController returns an idle controller for source rendering into view.
func NewController(f Fetcher, source Source, view Renderer, opts ...ControllerOption) *Controller {
	if source.SearchParam == "" {
		source.SearchParam = DefaultSearchParam
	}
	if source.ItemsPath == "" {
		source.ItemsPath = DefaultItemsPath
	}
	c := &Controller{
		fetcher: f,
		source:  source,
		view:    view,
		baseCtx: context.Background(),
		query:   NewQuery(source.PageSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.debouncer == nil {
		c.debouncer = NewDebouncer(DefaultSearchDebounce)
	}
	if c.query.PageSize <= 0 {
		c.query.PageSize = source.PageSize
	}
	if c.query.Page < 1 {
		c.query.Page = 1
	}
	if c.query.Filters == nil {
		c.query.Filters = map[string]string{}
	}
	return c
}

// Source returns the endpoint description.
func (c *Controller) Source() Source {
	return c.source
}

// SetFilter updates one filter. It does not reload; an empty value removes
// the filter from the request.
func (c *Controller) SetFilter(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		delete(c.query.Filters, name)
		return
	}
	c.query.Filters[name] = value
}

// ApplyFilter sets a filter, returns to page 1 and reloads at once.
func (c *Controller) ApplyFilter(ctx context.Context, name, value string) error {
	c.SetFilter(name, value)
	c.mu.Lock()
	c.query.Page = 1
	c.mu.Unlock()
	return c.Reload(ctx)
}

// Search sets the search text and schedules a reload of page 1 after the
// quiet period. A later call within the period replaces this one.
func (c *Controller) Search(text string) *Task {
	c.mu.Lock()
	c.query.Search = text
	c.query.Page = 1
	ctx := c.baseCtx
	c.mu.Unlock()

	return c.debouncer.Schedule(func() {
		_ = c.Reload(ctx)
	})
}

// GoToPage moves to page n and reloads. A page outside [1, totalPages] of the
// last loaded page is rejected without touching the query or issuing a request.
func (c *Controller) GoToPage(ctx context.Context, n int) error {
	c.mu.Lock()
	total := 1
	if c.page != nil && c.page.Pagination.TotalPages > 1 {
		total = c.page.Pagination.TotalPages
	}
	if n < 1 || n > total {
		c.mu.Unlock()
		return apperr.NewPageOutOfRange(n, total)
	}
	c.query.Page = n
	c.mu.Unlock()

	return c.Reload(ctx)
}

// Reload issues the current query. On success the page is replaced and items,
// pagination and stats are rendered; on failure only the error row is
// rendered and the previous page is kept. A response overtaken by a newer
// request is dropped and ErrSuperseded returned.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	q := c.query.Clone()
	c.state = StateLoading
	c.mu.Unlock()

	c.renderMu.Lock()
	if c.current(seq) {
		c.view.RenderLoading()
	}
	c.renderMu.Unlock()

	page, err := c.fetcher.FetchPage(ctx, c.source.Endpoint, q, c.source.ItemsPath, c.source.SearchParam)

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.state = StateErrored
		c.mu.Unlock()
		c.view.RenderError(err)
		return err
	}
	c.page = page
	c.state = StateRendered
	c.mu.Unlock()

	c.view.RenderItems(page.Items)
	c.view.RenderPagination(BuildControls(page.Pagination, c.source.Noun))
	c.view.RenderStats(page.Stats)
	return nil
}

func (c *Controller) current(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq == c.seq
}

// Query returns a copy of the current query.
func (c *Controller) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query.Clone()
}

// Page returns the last successfully loaded page, or nil.
func (c *Controller) Page() *Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels a pending debounced search.
func (c *Controller) Close() {
	c.debouncer.Stop()
}
