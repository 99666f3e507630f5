// Package preview turns a local CSV or spreadsheet file into a bounded,
// readable table without sending it anywhere.
package preview

import (
	"strconv"
	"time"
)

// Format is the content format of a file after decompression.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXLSX
	FormatXLS
)

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	case FormatXLS:
		return "xls"
	default:
		return "unknown"
	}
}

// Spreadsheet reports whether the format has selectable sheets.
func (f Format) Spreadsheet() bool {
	return f == FormatXLSX || f == FormatXLS
}

// Kind classifies a cell value.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindNumber
	KindDate
)

// Cell is one scalar value of a sheet. Text always holds the display string.
type Cell struct {
	Kind   Kind
	Text   string
	Number float64
	Time   time.Time
}

// Empty reports whether the cell carries no value.
func (c Cell) Empty() bool {
	return c.Kind == KindEmpty || c.Text == ""
}

// TextCell returns a text cell, or an empty cell for "".
func TextCell(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{Kind: KindText, Text: s}
}

// NumberCell returns a numeric cell displayed as text.
func NumberCell(n float64, text string) Cell {
	if text == "" {
		text = strconv.FormatFloat(n, 'f', -1, 64)
	}
	return Cell{Kind: KindNumber, Text: text, Number: n}
}

// DateCell returns a date cell displayed as text.
func DateCell(t time.Time, text string) Cell {
	if text == "" {
		text = t.Format("02/01/2006")
	}
	return Cell{Kind: KindDate, Text: text, Time: t}
}

// Sheet is one named grid of a workbook.
type Sheet struct {
	Name string
	Rows [][]Cell
}

// Workbook is the parsed content of one file. It is never mutated once built;
// selecting a new file replaces it.
type Workbook struct {
	Format Format
	Sheets []Sheet
}

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	if w == nil {
		return nil
	}
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}
