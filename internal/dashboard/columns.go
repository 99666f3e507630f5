package dashboard

import (
	"html/template"

	"github.com/ohler55/ojg/jp"
)

// Cell is one displayed value of a record.
type Cell struct {
	Text   string        `json:"text"`
	HTML   template.HTML `json:"-"`
	Format Format        `json:"format,omitempty"`
	Tone   string        `json:"tone,omitempty"`
}

// Row is one displayed record.
type Row struct {
	ID    string `json:"id"`
	Cells []Cell `json:"cells"`
}

// Headers returns the column titles.
func (t *Tab) Headers() []string {
	h := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		h[i] = c.Title
	}
	return h
}

// Rows maps records to display rows.
func (t *Tab) Rows(items []map[string]any) []Row {
	rows := make([]Row, len(items))
	for i, item := range items {
		rows[i] = Row{ID: ItemID(item), Cells: t.Cells(item)}
	}
	return rows
}

// Cells renders one record through the tab's columns.
func (t *Tab) Cells(item map[string]any) []Cell {
	cells := make([]Cell, len(t.Columns))
	for i, col := range t.Columns {
		cells[i] = col.render(lookup(col.expr, col.Key, item))
	}
	return cells
}

func (c Column) render(v any) Cell {
	cell := Cell{Format: c.Format}
	switch c.Format {
	case ColumnDate:
		cell.Text = FormatDate(v)
	case ColumnDateTime:
		cell.Text = FormatDateTime(v)
	case ColumnBool:
		cell.Text = FormatBool(v)
		cell.Tone = Tone(v)
	case ColumnBadge:
		cell.Text = Text(v)
		cell.Tone = Tone(v)
	case ColumnSize:
		cell.Text = FormatSize(v)
	case ColumnMarkdown:
		cell.Text = Text(v)
		if cell.Text != Missing {
			cell.HTML = RenderMarkdown(cell.Text)
		}
	default:
		cell.Text = Text(v)
	}
	return cell
}

// lookup evaluates a column path against a record. Registries built in code
// may leave expr unset, in which case key is parsed on the fly.
func lookup(expr jp.Expr, key string, item map[string]any) any {
	if expr == nil {
		var err error
		if expr, err = jp.ParseString(key); err != nil {
			return nil
		}
	}
	got := expr.Get(item)
	if len(got) == 0 {
		return nil
	}
	return got[0]
}

// ItemID returns the record's "id" as text.
func ItemID(item map[string]any) string {
	v, ok := item["id"]
	if !ok || v == nil {
		return ""
	}
	return Text(v)
}

// StatValue is one labelled counter.
type StatValue struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// StatValues picks the configured counters out of a page's stats, in
// registry order. Counters missing from the page are skipped. With no
// configured stats every counter is returned under its own key.
func (t *Tab) StatValues(stats map[string]int) []StatValue {
	if len(stats) == 0 {
		return nil
	}
	var out []StatValue
	if len(t.Stats) == 0 {
		for _, k := range sortedKeys(stats) {
			out = append(out, StatValue{Label: k, Value: stats[k]})
		}
		return out
	}
	for _, s := range t.Stats {
		if v, ok := stats[s.Key]; ok {
			out = append(out, StatValue{Label: s.Label, Value: v})
		}
	}
	return out
}
