package preview

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
)

// compressionSuffixes maps compression extensions to their Compression.
var compressionSuffixes = map[string]Compression{
	".gz":  CompressionGzip,
	".bz2": CompressionBzip2,
	".xz":  CompressionXZ,
}

var builtinPatterns = []struct {
	pattern string
	format  Format
}{
	{"*.csv", FormatCSV},
	{"*.xls", FormatXLS},
	{"*.{xlsx,xlsm,xltx,xltm}", FormatXLSX},
}

// Detector matches file names against the accepted patterns.
type Detector struct {
	rules []rule
}

type rule struct {
	g      glob.Glob
	format Format
}

// NewDetector compiles the built-in patterns plus extra spreadsheet patterns.
// Extra patterns are matched case-insensitively and resolve to XLSX.
func NewDetector(extra []string) (*Detector, error) {
	d := &Detector{}
	for _, p := range builtinPatterns {
		d.rules = append(d.rules, rule{g: glob.MustCompile(p.pattern), format: p.format})
	}
	for _, p := range extra {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid accept pattern %q: %w", p, err)
		}
		d.rules = append(d.rules, rule{g: g, format: FormatXLSX})
	}
	return d, nil
}

// Detect returns the content format and compression of name.
// A name matching no pattern fails with UNSUPPORTED_FORMAT.
func (d *Detector) Detect(name string) (Format, Compression, error) {
	lower := strings.ToLower(strings.TrimSpace(name))

	compression := CompressionNone
	for suffix, c := range compressionSuffixes {
		if strings.HasSuffix(lower, suffix) {
			compression = c
			lower = strings.TrimSuffix(lower, suffix)
			break
		}
	}

	for _, r := range d.rules {
		if r.g.Match(lower) {
			return r.format, compression, nil
		}
	}
	return FormatUnknown, CompressionNone, apperr.NewUnsupportedFormat(name)
}

var defaultDetector, _ = NewDetector(nil)

// Detect uses the built-in patterns only.
func Detect(name string) (Format, Compression, error) {
	return defaultDetector.Detect(name)
}
