package preview

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidateDelimiters are tried in order; ties keep the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// parseCSV reads delimited text into a single-sheet workbook of text cells.
// Blank lines are dropped here as well as by the grid's empty-row filter.
func parseCSV(name string, data []byte) (*Workbook, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, err
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]Cell
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		// encoding/csv already skips empty lines; a whitespace-only line is a
		// row with a value.
		row := make([]Cell, len(record))
		for i, field := range record {
			row[i] = TextCell(field)
		}
		rows = append(rows, row)
	}

	return &Workbook{
		Format: FormatCSV,
		Sheets: []Sheet{{Name: sheetNameFor(name), Rows: rows}},
	}, nil
}

// sniffDelimiter picks the candidate occurring most often on the first
// non-blank line, outside quotes. Defaults to a comma.
func sniffDelimiter(data []byte) rune {
	var line string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		n := countOutsideQuotes(line, d)
		if n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

func sheetNameFor(name string) string {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	for _, ext := range []string{".gz", ".bz2", ".xz", ".csv"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
		}
	}
	if base == "" {
		return "CSV"
	}
	return base
}
