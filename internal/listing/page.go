package listing

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
)

// DefaultItemsPath locates the records of a generic list response.
const DefaultItemsPath = "$.items"

// Pagination is the server's pagination block.
type Pagination struct {
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
	TotalPages  int  `json:"total_pages"`
	Total       int  `json:"total"`
	HasPrevious bool `json:"has_previous"`
	HasNext     bool `json:"has_next"`
}

// Page is one server answer. It is replaced wholesale by the next load.
type Page struct {
	Items      []map[string]any `json:"items"`
	Pagination Pagination       `json:"pagination"`
	Stats      map[string]int   `json:"stats,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// StatKeys returns the stat labels in sorted order.
func (p *Page) StatKeys() []string {
	keys := make([]string, 0, len(p.Stats))
	for k := range p.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodePage parses a list response. A body carrying success:false yields
// APPLICATION_FAILURE with the server message. Records are read at itemsPath;
// an absent pagination block describes a single page holding every record.
func DecodePage(body []byte, itemsPath string, requested Query) (*Page, error) {
	doc, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode list response: expected an object, got %T", doc)
	}

	if success, ok := root["success"].(bool); ok && !success {
		return nil, apperr.NewApplicationFailure(stringValue(root["message"]), 0)
	}

	if itemsPath == "" {
		itemsPath = DefaultItemsPath
	}
	x, err := jp.ParseString(itemsPath)
	if err != nil {
		return nil, fmt.Errorf("invalid items path %q: %w", itemsPath, err)
	}

	page := &Page{Items: []map[string]any{}, Message: stringValue(root["message"])}
	for _, got := range x.Get(root) {
		list, ok := got.([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if rec, ok := item.(map[string]any); ok {
				page.Items = append(page.Items, rec)
			}
		}
		break
	}

	if block, ok := root["pagination"].(map[string]any); ok {
		page.Pagination = Pagination{
			Page:        intValue(block["page"]),
			PerPage:     intValue(block["per_page"]),
			TotalPages:  intValue(block["total_pages"]),
			Total:       intValue(block["total"]),
			HasPrevious: boolValue(block["has_previous"]),
			HasNext:     boolValue(block["has_next"]),
		}
		if page.Pagination.Page == 0 {
			page.Pagination.Page = requested.Page
		}
		if page.Pagination.PerPage == 0 {
			page.Pagination.PerPage = requested.PageSize
		}
	} else {
		page.Pagination = singlePage(len(page.Items))
	}

	if stats, ok := root["stats"].(map[string]any); ok {
		page.Stats = map[string]int{}
		flattenStats("", stats, page.Stats)
	}

	return page, nil
}

func singlePage(n int) Pagination {
	return Pagination{Page: 1, PerPage: n, TotalPages: 1, Total: n}
}

// flattenStats keeps numeric leaves, joining nested keys with a dot
// ("par_role.AEF").
func flattenStats(prefix string, in map[string]any, out map[string]int) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenStats(key, val, out)
		case int64, float64, int:
			out[key] = intValue(val)
		}
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
