package preview

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Built-in number format ids that render as dates or times.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 30: true, 36: true, 45: true, 46: true, 47: true, 50: true, 57: true,
}

func parseXLSX(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, fmt.Errorf("no worksheet found")
	}

	wb := &Workbook{Format: FormatXLSX}
	dates := &dateStyles{f: f, cache: make(map[int]bool)}
	for _, name := range names {
		formatted, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}

		rows := make([][]Cell, len(formatted))
		for i, row := range formatted {
			cells := make([]Cell, len(row))
			for j, text := range row {
				rawText := text
				if i < len(raw) && j < len(raw[i]) {
					rawText = raw[i][j]
				}
				cells[j] = dates.cell(name, i, j, text, rawText)
			}
			rows[i] = cells
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	return wb, nil
}

// dateStyles remembers which style ids carry a date number format.
type dateStyles struct {
	f     *excelize.File
	cache map[int]bool
}

func (d *dateStyles) cell(sheet string, row, col int, text, raw string) Cell {
	if text == "" && raw == "" {
		return Cell{}
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return TextCell(text)
	}
	if d.isDate(sheet, row, col) {
		if t, err := excelize.ExcelDateToTime(n, false); err == nil {
			return DateCell(t, text)
		}
	}
	return NumberCell(n, text)
}

func (d *dateStyles) isDate(sheet string, row, col int) bool {
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return false
	}
	styleID, err := d.f.GetCellStyle(sheet, axis)
	if err != nil || styleID == 0 {
		return false
	}
	if v, ok := d.cache[styleID]; ok {
		return v
	}
	v := false
	if style, err := d.f.GetStyle(styleID); err == nil && style != nil {
		v = builtinDateFormats[style.NumFmt]
		if style.CustomNumFmt != nil {
			v = customFormatIsDate(*style.CustomNumFmt)
		}
	}
	d.cache[styleID] = v
	return v
}

// customFormatIsDate reports whether a number format code contains date or
// time tokens outside quoted literals and bracketed sections.
func customFormatIsDate(code string) bool {
	quoted, bracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		case strings.ContainsRune("ydmhs", r):
			return true
		}
	}
	return false
}
