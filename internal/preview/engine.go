package preview

import (
	"context"
	"errors"
	"sync"
)

// DefaultRowCap is the cap of the upload preview.
const DefaultRowCap = 100

// Options configures an Engine.
type Options struct {
	// RowCap bounds the displayed body rows; 0 means DefaultRowCap.
	RowCap int
	// Detector resolves file names; nil means the built-in patterns.
	Detector *Detector
	// MaxBytes bounds the decompressed size of a file; 0 means DefaultMaxBytes.
	MaxBytes int64
}

// Result is delivered once per LoadFile call.
type Result struct {
	Table Table
	Err   error
	// Superseded is set when a later LoadFile replaced this one; the engine
	// state was left untouched and Table is zero.
	Superseded bool
}

// Engine owns the workbook of one upload form. Loads are last-write-wins:
// starting a load cancels the previous one and only the newest result is
// installed.
type Engine struct {
	opts Options

	mu       sync.Mutex
	version  uint64
	cancel   context.CancelFunc
	workbook *Workbook
	fileName string
	fileSize int64
	sheet    int
	current  Table
}

// NewEngine returns an engine with nothing loaded.
func NewEngine(opts Options) *Engine {
	if opts.RowCap <= 0 {
		opts.RowCap = DefaultRowCap
	}
	if opts.Detector == nil {
		opts.Detector = defaultDetector
	}
	return &Engine{opts: opts}
}

// RowCap returns the configured cap.
func (e *Engine) RowCap() int {
	return e.opts.RowCap
}

// LoadFile parses f in the background. The returned channel yields exactly one
// Result and is then closed.
func (e *Engine) LoadFile(ctx context.Context, f File) <-chan Result {
	out := make(chan Result, 1)

	e.mu.Lock()
	e.version++
	v := e.version
	if e.cancel != nil {
		e.cancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	go func() {
		defer close(out)
		defer cancel()

		wb, err := ParseLimit(loadCtx, f, e.opts.Detector, e.opts.MaxBytes)

		e.mu.Lock()
		defer e.mu.Unlock()
		if v != e.version {
			out <- Result{Superseded: true}
			return
		}
		e.cancel = nil

		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			out <- Result{Err: err}
			return
		}

		e.fileName = f.Name()
		e.fileSize = f.Size()
		e.sheet = 0
		if err != nil {
			e.workbook = nil
			e.current = e.decorate(RenderError(err))
			out <- Result{Table: e.current, Err: err}
			return
		}
		e.workbook = wb
		e.current = e.renderSheet()
		out <- Result{Table: e.current}
	}()

	return out
}

// Load is LoadFile waiting for its result.
func (e *Engine) Load(ctx context.Context, f File) Result {
	return <-e.LoadFile(ctx, f)
}

// SelectSheet re-renders sheet i. It is a no-op returning false when nothing
// is loaded, the input has no sheets to choose from, or i is out of range.
func (e *Engine) SelectSheet(i int) (Table, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.workbook == nil || !e.workbook.Format.Spreadsheet() {
		return e.current, false
	}
	if i < 0 || i >= len(e.workbook.Sheets) {
		return e.current, false
	}
	e.sheet = i
	e.current = e.renderSheet()
	return e.current, true
}

// Current returns the latest installed view.
func (e *Engine) Current() Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// SheetNames returns the sheets of the loaded workbook.
func (e *Engine) SheetNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workbook.SheetNames()
}

// Reset forgets the loaded file and supersedes any load in flight.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.workbook = nil
	e.fileName = ""
	e.fileSize = 0
	e.sheet = 0
	e.current = Table{}
}

// renderSheet must be called with mu held.
func (e *Engine) renderSheet() Table {
	if len(e.workbook.Sheets) == 0 {
		return e.decorate(Render(Grid{}))
	}
	t := Render(BuildGrid(e.workbook.Sheets[e.sheet], e.opts.RowCap))
	t.Format = e.workbook.Format.String()
	return e.decorate(t)
}

func (e *Engine) decorate(t Table) Table {
	t.FileName = e.fileName
	t.FileSize = FormatFileSize(e.fileSize)
	if e.workbook != nil && e.workbook.Format.Spreadsheet() {
		t.SheetNames = e.workbook.SheetNames()
		t.SheetIndex = e.sheet
		t.ShowSheetSelector = len(t.SheetNames) > 1
	}
	return t
}
