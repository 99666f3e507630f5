// Package listing drives every paginated, filterable admin list: it builds
// the query, talks to the list endpoint, and hands the page to a renderer.
package listing

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultSearchParam is the query parameter carrying free-text search.
const DefaultSearchParam = "search"

// Query is the state one list sends to its endpoint.
type Query struct {
	Page     int
	PageSize int
	Filters  map[string]string
	Search   string
}

// NewQuery returns page 1 with the given page size.
func NewQuery(pageSize int) Query {
	return Query{Page: 1, PageSize: pageSize, Filters: map[string]string{}}
}

// Clone returns a copy that shares no map with q.
func (q Query) Clone() Query {
	c := q
	c.Filters = make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		c.Filters[k] = v
	}
	return c
}

// Values serializes q: page, per_page, then every non-empty filter and the
// search text under searchParam.
func (q Query) Values(searchParam string) url.Values {
	if searchParam == "" {
		searchParam = DefaultSearchParam
	}
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.PageSize > 0 {
		v.Set("per_page", strconv.Itoa(q.PageSize))
	}
	for name, value := range q.Filters {
		if strings.TrimSpace(value) == "" || name == searchParam {
			continue
		}
		v.Set(name, value)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set(searchParam, s)
	}
	return v
}
