package preview

import (
	"context"
	"errors"
	"fmt"
	"io"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
)

// DefaultMaxBytes bounds the decompressed content of one file.
const DefaultMaxBytes = 32 << 20

// ErrTooLarge is wrapped by the PARSE_FAILURE of a file whose decompressed
// content exceeds the limit.
var ErrTooLarge = errors.New("content exceeds the size limit")

// Parse reads f and builds its Workbook, reading at most DefaultMaxBytes of
// decompressed content.
func Parse(ctx context.Context, f File, d *Detector) (*Workbook, error) {
	return ParseLimit(ctx, f, d, DefaultMaxBytes)
}

// ParseLimit is Parse with a maximum decompressed size; maxBytes <= 0 means
// DefaultMaxBytes. Every failure, including a panic inside a spreadsheet
// decoder, is returned as PARSE_FAILURE; names matching no accepted pattern
// fail with UNSUPPORTED_FORMAT before any byte is read.
func ParseLimit(ctx context.Context, f File, d *Detector, maxBytes int64) (wb *Workbook, err error) {
	if d == nil {
		d = defaultDetector
	}
	format, compression, err := d.Detect(f.Name())
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			wb, err = nil, apperr.NewParseFailure(f.Name(), fmt.Errorf("%v", r))
		}
	}()

	data, err := readAll(ctx, f, compression, maxBytes)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, apperr.NewParseFailure(f.Name(), err)
	}

	switch format {
	case FormatCSV:
		wb, err = parseCSV(f.Name(), data)
	case FormatXLSX:
		wb, err = parseXLSX(data)
	case FormatXLS:
		wb, err = parseXLS(data)
	}
	if err != nil {
		return nil, apperr.NewParseFailure(f.Name(), err)
	}
	return wb, nil
}

// readAll decompresses f, failing with ErrTooLarge once more than maxBytes
// come out of the decoder.
func readAll(ctx context.Context, f File, c Compression, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	r, err := decompress(&ctxReader{ctx: ctx, r: rc}, c)
	if err != nil {
		return nil, err
	}
	if closer, ok := r.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%s)", ErrTooLarge, FormatFileSize(maxBytes))
	}
	return data, nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
