package preview

import (
	"fmt"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
)

// State is the kind of view a Table describes.
type State string

const (
	StateTable State = "table"
	StateEmpty State = "empty"
	StateError State = "error"
)

// PlaceholderHeader labels header cells that are empty or missing.
const PlaceholderHeader = "Column"

// Table is the target-independent view model of a preview.
type Table struct {
	State State  `json:"state"`
	Title string `json:"title,omitempty"`

	FileName string `json:"file_name,omitempty"`
	FileSize string `json:"file_size,omitempty"`
	Format   string `json:"format,omitempty"`

	SheetNames        []string `json:"sheet_names,omitempty"`
	SheetIndex        int      `json:"sheet_index"`
	ShowSheetSelector bool     `json:"show_sheet_selector"`

	Headers     []string   `json:"headers,omitempty"`
	Rows        [][]string `json:"rows,omitempty"`
	RowCount    int        `json:"row_count"`
	ColumnCount int        `json:"column_count"`
	Shown       int        `json:"shown"`
	Truncated   bool       `json:"truncated"`

	Notice  string `json:"notice,omitempty"`
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Render maps a grid to its view model. It never returns an empty table:
// a grid without non-empty body rows renders the empty state.
func Render(g Grid) Table {
	t := Table{Title: g.Title, RowCount: g.TotalRows, ColumnCount: g.Columns}

	if g.TotalRows == 0 {
		t.State = StateEmpty
		t.Message = "No data found in this sheet"
		return t
	}

	t.State = StateTable
	t.Headers = make([]string, g.Columns)
	for i := range t.Headers {
		if i < len(g.Header) && !g.Header[i].Empty() {
			t.Headers[i] = g.Header[i].Text
		} else {
			t.Headers[i] = PlaceholderHeader
		}
	}

	t.Rows = make([][]string, len(g.Body))
	for i, row := range g.Body {
		out := make([]string, g.Columns)
		for j := 0; j < len(row) && j < g.Columns; j++ {
			out[j] = row[j].Text
		}
		t.Rows[i] = out
	}
	t.Shown = len(t.Rows)
	t.Truncated = g.Truncated

	if g.Truncated {
		t.Notice = fmt.Sprintf("Showing the first %d non-empty rows of %d", t.Shown, g.TotalRows)
		t.Hint = "The full file will be processed on submission."
	} else {
		t.Notice = fmt.Sprintf("Showing %d %s", t.Shown, plural(t.Shown, "row", "rows"))
	}
	return t
}

// RenderError maps a load failure to the error view.
func RenderError(err error) Table {
	t := Table{State: StateError, Message: apperr.UserMessage(err)}
	switch {
	case apperr.Is(err, apperr.ErrUnsupportedFormat):
		t.Hint = "Accepted formats: .csv, .xlsx, .xls"
	case apperr.Is(err, apperr.ErrParseFailure):
		t.Hint = "Check that the file is not corrupted and try again."
	}
	return t
}

// FormatFileSize renders a byte count with base-1024 units and up to two decimals.
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := fmt.Sprintf("%.2f", v)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	s = trimDot(s)
	return s + " " + units[i]
}

func trimDot(s string) string {
	if s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
