package preview

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/extrame/xls"
)

func parseXLS(data []byte) (wb *Workbook, err error) {
	// The BIFF reader panics on truncated streams.
	defer func() {
		if r := recover(); r != nil {
			wb, err = nil, fmt.Errorf("corrupt xls stream: %v", r)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if book.NumSheets() == 0 {
		return nil, fmt.Errorf("no worksheet found")
	}

	wb = &Workbook{Format: FormatXLS}
	for i := 0; i < book.NumSheets(); i++ {
		ws := book.GetSheet(i)
		if ws == nil {
			continue
		}
		var rows [][]Cell
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]Cell, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, xlsCell(row.Col(c)))
			}
			rows = append(rows, cells)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: ws.Name, Rows: rows})
	}
	return wb, nil
}

func xlsCell(text string) Cell {
	if text == "" {
		return Cell{}
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
		return NumberCell(n, text)
	}
	return TextCell(text)
}
