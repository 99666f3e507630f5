package dashboard

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/croire045-rgb/collecte-plateform/internal/preview"
)

// Format is how a column value is displayed.
type Format string

const (
	ColumnText     Format = ""
	ColumnDate     Format = "date"
	ColumnDateTime Format = "datetime"
	ColumnBool     Format = "bool"
	ColumnBadge    Format = "badge"
	ColumnSize     Format = "size"
	ColumnMarkdown Format = "markdown"
)

func (f Format) valid() bool {
	switch f {
	case ColumnText, "text", ColumnDate, ColumnDateTime, ColumnBool, ColumnBadge, ColumnSize, ColumnMarkdown:
		return true
	}
	return false
}

// Missing is displayed for absent values.
const Missing = "-"

var inputLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// ParseTime reads the date formats the backend emits.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a date as dd/mm/yyyy; unparseable values are kept.
func FormatDate(v any) string {
	return formatTimeValue(v, "02/01/2006")
}

// FormatDateTime renders a timestamp as dd/mm/yyyy hh:mm.
func FormatDateTime(v any) string {
	return formatTimeValue(v, "02/01/2006 15:04")
}

func formatTimeValue(v any, layout string) string {
	s := Text(v)
	if s == Missing {
		return s
	}
	if t, ok := ParseTime(s); ok {
		return t.Format(layout)
	}
	return s
}

// FormatBool renders an activity flag.
func FormatBool(v any) string {
	switch b := v.(type) {
	case bool:
		if b {
			return "Active"
		}
		return "Inactive"
	case nil:
		return Missing
	default:
		s := strings.ToLower(Text(v))
		if s == "true" || s == "1" {
			return "Active"
		}
		return "Inactive"
	}
}

// FormatSize renders byte counts; strings are shown as sent.
func FormatSize(v any) string {
	switch n := v.(type) {
	case int64:
		return preview.FormatFileSize(n)
	case int:
		return preview.FormatFileSize(int64(n))
	case float64:
		return preview.FormatFileSize(int64(n))
	default:
		return Text(v)
	}
}

// Text renders any JSON scalar; nil and "" become Missing.
func Text(v any) string {
	switch s := v.(type) {
	case nil:
		return Missing
	case string:
		if strings.TrimSpace(s) == "" {
			return Missing
		}
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

// Tone classifies a badge value.
func Tone(v any) string {
	s := strings.ToLower(Text(v))
	switch {
	case s == "true", strings.HasPrefix(s, "valid"), strings.HasPrefix(s, "actif"), strings.HasPrefix(s, "active"),
		strings.HasPrefix(s, "envoy"), strings.HasPrefix(s, "approv"), strings.HasPrefix(s, "réussi"):
		return "success"
	case s == "false", strings.HasPrefix(s, "rejet"), strings.HasPrefix(s, "rejec"), strings.HasPrefix(s, "echec"),
		strings.HasPrefix(s, "échec"), strings.HasPrefix(s, "inactif"), strings.HasPrefix(s, "inactive"), strings.HasPrefix(s, "fail"):
		return "danger"
	case strings.Contains(s, "attente"), strings.HasPrefix(s, "pending"):
		return "warning"
	default:
		return "primary"
	}
}

// RenderMarkdown converts markdown to HTML. Raw HTML in the source is not
// passed through.
func RenderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
