package preview

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
)

func textRow(values ...string) []Cell {
	row := make([]Cell, len(values))
	for i, v := range values {
		row[i] = TextCell(v)
	}
	return row
}

func sheetWithRows(n int) Sheet {
	rows := [][]Cell{textRow("id", "name")}
	for i := 1; i <= n; i++ {
		rows = append(rows, textRow(fmt.Sprint(i), fmt.Sprintf("row %d", i)))
	}
	return Sheet{Name: "Data", Rows: rows}
}

func xlsxBytes(t *testing.T, build func(f *excelize.File)) []byte {
	t.Helper()
	f := excelize.NewFile()
	build(f)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		format      Format
		compression Compression
	}{
		{"data.csv", FormatCSV, CompressionNone},
		{"DATA.CSV", FormatCSV, CompressionNone},
		{"book.xlsx", FormatXLSX, CompressionNone},
		{"book.xlsm", FormatXLSX, CompressionNone},
		{"legacy.xls", FormatXLS, CompressionNone},
		{"export.csv.gz", FormatCSV, CompressionGzip},
		{"export.csv.xz", FormatCSV, CompressionXZ},
		{"book.xlsx.bz2", FormatXLSX, CompressionBzip2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c, err := Detect(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.format, f)
			assert.Equal(t, tt.compression, c)
		})
	}

	for _, bad := range []string{"report.pdf", "archive.gz", "noext", "data.csv.zip"} {
		_, _, err := Detect(bad)
		assert.True(t, apperr.Is(err, apperr.ErrUnsupportedFormat), bad)
	}
}

func TestDetector_ExtraPatterns(t *testing.T) {
	d, err := NewDetector([]string{"*.XLSB"})
	require.NoError(t, err)

	f, _, err := d.Detect("big.xlsb")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = NewDetector([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestBuildGrid_DropsEmptyRowsBeforeCounting(t *testing.T) {
	sheet := Sheet{Name: "S", Rows: [][]Cell{
		textRow("", ""),
		textRow("a", "b"),
		textRow("1", "2"),
		textRow("", ""),
		{},
		textRow("3", ""),
		nil,
	}}

	g := BuildGrid(sheet, 100)
	assert.Equal(t, 2, g.TotalRows)
	require.Len(t, g.Body, 2)
	assert.Equal(t, "1", g.Body[0][0].Text)
	assert.Equal(t, "3", g.Body[1][0].Text)
	assert.Equal(t, "a", g.Header[0].Text)
	assert.False(t, g.Truncated)
}

func TestBuildGrid_CapCountsOnlyNonEmptyRows(t *testing.T) {
	sheet := sheetWithRows(150)
	// Interleave blank rows; they must not consume the cap.
	var rows [][]Cell
	for i, r := range sheet.Rows {
		rows = append(rows, r)
		if i%10 == 0 {
			rows = append(rows, textRow("", ""))
		}
	}
	sheet.Rows = rows

	g := BuildGrid(sheet, 100)
	assert.Equal(t, 150, g.TotalRows)
	assert.Len(t, g.Body, 100)
	assert.True(t, g.Truncated)
	assert.Equal(t, "100", g.Body[99][0].Text)
}

func TestBuildGrid_WidensToWidestRow(t *testing.T) {
	sheet := Sheet{Rows: [][]Cell{textRow("a"), textRow("1", "2", "3")}}
	g := BuildGrid(sheet, 0)
	assert.Equal(t, 3, g.Columns)
}

func TestRender_Truncated(t *testing.T) {
	table := Render(BuildGrid(sheetWithRows(150), 100))

	assert.Equal(t, StateTable, table.State)
	assert.Len(t, table.Rows, 100)
	assert.Equal(t, 100, table.Shown)
	assert.Equal(t, 150, table.RowCount)
	assert.True(t, table.Truncated)
	assert.Contains(t, table.Notice, "100")
	assert.Contains(t, table.Notice, "150")
	assert.Equal(t, "Showing the first 100 non-empty rows of 150", table.Notice)
}

func TestRender_EmptyState(t *testing.T) {
	sheet := Sheet{Rows: [][]Cell{textRow("a", "b"), textRow("", ""), {}}}
	table := Render(BuildGrid(sheet, 100))

	assert.Equal(t, StateEmpty, table.State)
	assert.Empty(t, table.Rows)
	assert.Empty(t, table.Headers)
	assert.NotEmpty(t, table.Message)

	assert.Equal(t, StateEmpty, Render(BuildGrid(Sheet{}, 100)).State)
}

func TestRender_PlaceholderHeadersAndPadding(t *testing.T) {
	sheet := Sheet{Rows: [][]Cell{textRow("Nom", ""), textRow("x", "y", "z")}}
	table := Render(BuildGrid(sheet, 100))

	assert.Equal(t, []string{"Nom", PlaceholderHeader, PlaceholderHeader}, table.Headers)
	assert.Equal(t, [][]string{{"x", "y", "z"}}, table.Rows)
	assert.Equal(t, 3, table.ColumnCount)
	assert.Equal(t, "Showing 1 row", table.Notice)
}

func TestRenderError(t *testing.T) {
	table := RenderError(apperr.NewUnsupportedFormat("a.pdf"))
	assert.Equal(t, StateError, table.State)
	assert.Contains(t, table.Message, "a.pdf")
	assert.NotEmpty(t, table.Hint)
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		0:               "0 Bytes",
		512:             "512 Bytes",
		1024:            "1 KB",
		1536:            "1.5 KB",
		10 * 1024 * 1024: "10 MB",
		1288490189:      "1.2 GB",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatFileSize(in), in)
	}
}

func TestParseCSV(t *testing.T) {
	data := "\xEF\xBB\xBFnom;ville\n\nAwa;Dakar\n   \n;\nMoussa;Thiès\n"
	wb, err := Parse(context.Background(), FromBytes("membres.csv", []byte(data)), nil)
	require.NoError(t, err)

	require.Len(t, wb.Sheets, 1)
	assert.Equal(t, "membres", wb.Sheets[0].Name)
	rows := wb.Sheets[0].Rows
	// Only the truly empty line is skipped. "   " is a value and ";" is an
	// empty row left to the grid filter.
	require.Len(t, rows, 5)
	assert.Equal(t, "nom", rows[0][0].Text)
	assert.Equal(t, "   ", rows[2][0].Text)
	assert.Equal(t, "Thiès", rows[4][1].Text)

	g := BuildGrid(wb.Sheets[0], 50)
	assert.Equal(t, 3, g.TotalRows)
}

func TestParseCSV_Windows1252Fallback(t *testing.T) {
	data := []byte("nom,pays\nJos\xe9,S\xe9n\xe9gal\n")
	wb, err := Parse(context.Background(), FromBytes("x.csv", data), nil)
	require.NoError(t, err)
	assert.Equal(t, "José", wb.Sheets[0].Rows[1][0].Text)
	assert.Equal(t, "Sénégal", wb.Sheets[0].Rows[1][1].Text)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ';', sniffDelimiter([]byte("a;b;c\n1;2;3")))
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\n")))
	assert.Equal(t, ',', sniffDelimiter([]byte(`"a;b",c`+"\n")))
	assert.Equal(t, ',', sniffDelimiter([]byte("single\n")))
}

func TestParseCompressedCSV(t *testing.T) {
	plain := "a,b\n1,2\n"

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(plain))
	require.NoError(t, gw.Close())

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, _ = xw.Write([]byte(plain))
	require.NoError(t, xw.Close())

	for name, data := range map[string][]byte{"d.csv.gz": gz.Bytes(), "d.csv.xz": xzBuf.Bytes()} {
		wb, err := Parse(context.Background(), FromBytes(name, data), nil)
		require.NoError(t, err, name)
		assert.Equal(t, "2", wb.Sheets[0].Rows[1][1].Text, name)
	}

	_, err = Parse(context.Background(), FromBytes("d.csv.gz", []byte("not gzip")), nil)
	assert.True(t, apperr.Is(err, apperr.ErrParseFailure))
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestParseLimit_DecompressedSize(t *testing.T) {
	head := []byte("a,b\n1,2\n")
	bomb := gzipBytes(t, append(head, bytes.Repeat([]byte("\n"), 4<<20)...))
	require.Less(t, len(bomb), 64<<10, "the archive itself stays small")

	_, err := ParseLimit(context.Background(), FromBytes("x.csv.gz", bomb), nil, 64<<10)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrParseFailure))
	assert.ErrorIs(t, err, ErrTooLarge)

	// Exactly at the limit is accepted.
	small := gzipBytes(t, head)
	wb, err := ParseLimit(context.Background(), FromBytes("x.csv.gz", small), nil, int64(len(head)))
	require.NoError(t, err)
	assert.Equal(t, "2", wb.Sheets[0].Rows[1][1].Text)

	e := NewEngine(Options{MaxBytes: 64 << 10})
	res := e.Load(context.Background(), FromBytes("x.csv.gz", bomb))
	assert.True(t, apperr.Is(res.Err, apperr.ErrParseFailure))
	assert.Equal(t, StateError, res.Table.State)
}

func TestParseXLSX(t *testing.T) {
	when := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	data := xlsxBytes(t, func(f *excelize.File) {
		_ = f.SetCellValue("Sheet1", "A1", "Nom")
		_ = f.SetCellValue("Sheet1", "B1", "Montant")
		_ = f.SetCellValue("Sheet1", "C1", "Date")
		_ = f.SetCellValue("Sheet1", "A2", "Awa")
		_ = f.SetCellValue("Sheet1", "B2", 1250.5)
		_ = f.SetCellValue("Sheet1", "C2", when)
		_, _ = f.NewSheet("Résumé")
		_ = f.SetCellValue("Résumé", "A1", "Total")
	})

	wb, err := Parse(context.Background(), FromBytes("book.xlsx", data), nil)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, wb.Format)
	assert.Equal(t, []string{"Sheet1", "Résumé"}, wb.SheetNames())

	row := wb.Sheets[0].Rows[1]
	assert.Equal(t, KindText, row[0].Kind)
	assert.Equal(t, KindNumber, row[1].Kind)
	assert.InDelta(t, 1250.5, row[1].Number, 0.0001)
	assert.Equal(t, KindDate, row[2].Kind)
	assert.Equal(t, when, row[2].Time.UTC().Truncate(time.Second))
}

func TestParse_CorruptSpreadsheet(t *testing.T) {
	for _, name := range []string{"bad.xlsx", "bad.xls"} {
		_, err := Parse(context.Background(), FromBytes(name, []byte("definitely not a workbook")), nil)
		require.Error(t, err, name)
		assert.True(t, apperr.Is(err, apperr.ErrParseFailure), name)
	}
}

func TestCustomFormatIsDate(t *testing.T) {
	assert.True(t, customFormatIsDate("dd/mm/yyyy"))
	assert.True(t, customFormatIsDate("[$-40C]d mmmm yyyy"))
	assert.False(t, customFormatIsDate(`#,##0.00 "days"`))
	assert.False(t, customFormatIsDate("[Red]0.00"))
}

// blockingFile holds Open until release is closed.
type blockingFile struct {
	File
	release chan struct{}
}

func (b *blockingFile) Open() (io.ReadCloser, error) {
	<-b.release
	return b.File.Open()
}

func TestEngine_LastWriteWins(t *testing.T) {
	e := NewEngine(Options{})
	slow := &blockingFile{File: FromBytes("first.csv", []byte("a\n1\n")), release: make(chan struct{})}

	first := e.LoadFile(context.Background(), slow)
	second := e.Load(context.Background(), FromBytes("second.csv", []byte("b\n2\n3\n")))
	require.NoError(t, second.Err)
	assert.Equal(t, 2, second.Table.RowCount)

	close(slow.release)
	res := <-first
	assert.True(t, res.Superseded)

	current := e.Current()
	assert.Equal(t, "second.csv", current.FileName)
	assert.Equal(t, []string{"b"}, current.Headers)
}

func TestEngine_SelectSheet(t *testing.T) {
	data := xlsxBytes(t, func(f *excelize.File) {
		_ = f.SetCellValue("Sheet1", "A1", "h")
		_ = f.SetCellValue("Sheet1", "A2", "v")
		_, _ = f.NewSheet("Vide")
	})

	e := NewEngine(Options{RowCap: 50})
	res := e.Load(context.Background(), FromBytes("b.xlsx", data))
	require.NoError(t, res.Err)
	assert.True(t, res.Table.ShowSheetSelector)
	assert.Equal(t, StateTable, res.Table.State)

	table, ok := e.SelectSheet(1)
	require.True(t, ok)
	assert.Equal(t, StateEmpty, table.State)
	assert.Equal(t, 1, table.SheetIndex)

	_, ok = e.SelectSheet(2)
	assert.False(t, ok)
	_, ok = e.SelectSheet(-1)
	assert.False(t, ok)
	assert.Equal(t, 1, e.Current().SheetIndex)
}

func TestEngine_SelectSheetIgnoredForCSVAndEmpty(t *testing.T) {
	e := NewEngine(Options{})
	_, ok := e.SelectSheet(0)
	assert.False(t, ok)

	res := e.Load(context.Background(), FromBytes("a.csv", []byte("x\n1\n")))
	require.NoError(t, res.Err)
	assert.False(t, res.Table.ShowSheetSelector)
	_, ok = e.SelectSheet(0)
	assert.False(t, ok)
}

func TestEngine_ErrorsBecomeErrorState(t *testing.T) {
	e := NewEngine(Options{})

	res := e.Load(context.Background(), FromBytes("notes.txt", []byte("hello")))
	require.Error(t, res.Err)
	assert.Equal(t, StateError, res.Table.State)
	assert.Equal(t, "notes.txt", res.Table.FileName)

	res = e.Load(context.Background(), FromBytes("bad.xlsx", []byte{0x50, 0x4b, 0x03}))
	assert.True(t, apperr.Is(res.Err, apperr.ErrParseFailure))
	assert.Equal(t, StateError, e.Current().State)
	assert.Nil(t, e.SheetNames())
}

func TestEngine_Reset(t *testing.T) {
	e := NewEngine(Options{})
	e.Load(context.Background(), FromBytes("a.csv", []byte("x\n1\n")))
	e.Reset()
	assert.Equal(t, Table{}, e.Current())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tables := make(chan Table, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, NewEngine(Options{}), func(t Table, _ error) { tables <- t })
	}()

	select {
	case first := <-tables:
		assert.Equal(t, 1, first.RowCount)
	case <-time.After(5 * time.Second):
		t.Fatal("initial preview not delivered")
	}

	require.NoError(t, os.WriteFile(path, []byte("a\n1\n2\n3\n"), 0600))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tbl := <-tables:
			if tbl.RowCount == 3 {
				cancel()
				require.NoError(t, <-done)
				return
			}
		case <-deadline:
			t.Fatal("updated preview not delivered")
		}
	}
}

func TestSheetNameFor(t *testing.T) {
	assert.Equal(t, "export", sheetNameFor("dir/export.csv.gz"))
	assert.Equal(t, "CSV", sheetNameFor(".csv"))
	assert.True(t, strings.HasPrefix(sheetNameFor(`C:\x\y.csv`), "y"))
}
