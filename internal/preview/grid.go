package preview

// Grid is a read-only view of one sheet: the header row, the non-empty body
// rows kept by the cap, and the true non-empty total.
// len(Body) <= min(TotalRows, cap) always holds.
type Grid struct {
	Title     string
	Header    []Cell
	Body      [][]Cell
	Truncated bool
	TotalRows int
	Columns   int
}

// RowEmpty reports whether no cell of row carries a value.
func RowEmpty(row []Cell) bool {
	for _, c := range row {
		if !c.Empty() {
			return false
		}
	}
	return true
}

// BuildGrid derives the grid of sheet. Leading empty rows are skipped and the
// first remaining row is the header. Empty body rows are dropped before they
// are counted or capped. cap <= 0 means no cap.
func BuildGrid(sheet Sheet, cap int) Grid {
	g := Grid{Title: sheet.Name}

	rows := sheet.Rows
	for len(rows) > 0 && RowEmpty(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return g
	}

	g.Header = rows[0]
	g.Columns = len(g.Header)

	for _, row := range rows[1:] {
		if RowEmpty(row) {
			continue
		}
		g.TotalRows++
		if cap > 0 && len(g.Body) >= cap {
			continue
		}
		g.Body = append(g.Body, row)
		if len(row) > g.Columns {
			g.Columns = len(row)
		}
	}
	g.Truncated = cap > 0 && g.TotalRows > cap
	return g
}
