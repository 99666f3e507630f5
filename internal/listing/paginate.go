package listing

import "fmt"

// PageLink is one entry of the pagination bar: a page number or an ellipsis.
type PageLink struct {
	Number   int  `json:"number,omitempty"`
	Current  bool `json:"current,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
}

// Links returns the pagination bar for page out of total: the first page,
// the last page, and pages within 2 of the current one are numbers; a page
// exactly 3 away becomes an ellipsis; every other page is omitted.
func Links(page, total int) []PageLink {
	if total <= 1 {
		return nil
	}
	var links []PageLink
	for i := 1; i <= total; i++ {
		dist := i - page
		if dist < 0 {
			dist = -dist
		}
		switch {
		case i == page || i == 1 || i == total || dist <= 2:
			links = append(links, PageLink{Number: i, Current: i == page})
		case dist == 3:
			links = append(links, PageLink{Ellipsis: true})
		}
	}
	return links
}

// Controls is the rendered pagination block.
type Controls struct {
	Links    []PageLink `json:"links,omitempty"`
	Previous int        `json:"previous,omitempty"`
	Next     int        `json:"next,omitempty"`
	Summary  string     `json:"summary,omitempty"`
}

// Visible reports whether any control should be drawn.
func (c Controls) Visible() bool {
	return len(c.Links) > 0
}

// HasPrevious reports whether the previous control is shown.
func (c Controls) HasPrevious() bool { return c.Previous > 0 }

// HasNext reports whether the next control is shown.
func (c Controls) HasNext() bool { return c.Next > 0 }

// BuildControls derives the controls from a pagination block. noun names the
// items in the summary ("users"); empty means "items". Nothing is shown for a
// single page.
func BuildControls(p Pagination, noun string) Controls {
	if p.TotalPages <= 1 {
		return Controls{}
	}
	if noun == "" {
		noun = "items"
	}
	c := Controls{
		Links:   Links(p.Page, p.TotalPages),
		Summary: fmt.Sprintf("Page %d of %d (%d %s)", p.Page, p.TotalPages, p.Total, noun),
	}
	if p.HasPrevious {
		c.Previous = p.Page - 1
	}
	if p.HasNext {
		c.Next = p.Page + 1
	}
	return c
}
