package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/preview"
)

// PageData holds the fields the layout needs on every page.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: a role name or "preview"
	Roles   []string
}

// DashboardPageData is the template data for a role dashboard.
type DashboardPageData struct {
	PageData
	Role *dashboard.Role
	Tab  *dashboard.Tab
	List ListView
	// DebounceMS is the search quiet period used by the browser.
	DebounceMS int
}

// PreviewPageData is the template data for the upload preview.
type PreviewPageData struct {
	PageData
	SessionID string
	Legacy    bool
	RowCap    int
	Table     preview.Table
}

// AlertData is the template data for an action result.
type AlertData struct {
	Tone    string
	Message string
}

// ErrorPageData is the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// pageFiles maps page names to their template files. Each page is parsed
// over its own clone of layout.html.
var pageFiles = map[string]string{
	"dashboard": "dashboard.html",
	"preview":   "preview.html",
	"error":     "error.html",
}

// Renderer executes the embedded page templates.
type Renderer struct {
	pages   map[string]*template.Template
	version string
	logger  *zap.Logger
}

// NewRenderer parses layout.html and every page of templateFS. It panics on
// a malformed template, since templates are embedded at build time.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	layout := template.Must(template.New("layout").Funcs(template.FuncMap{
		"isState": func(t preview.Table, s string) bool { return string(t.State) == s },
	}).ParseFS(templateFS, "layout.html"))

	r := &Renderer{pages: make(map[string]*template.Template, len(pageFiles)), version: version, logger: logger}
	for name, file := range pageFiles {
		r.pages[name] = template.Must(template.Must(layout.Clone()).ParseFS(templateFS, file))
	}
	return r
}

func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus writes the whole page, or only its "content" block for an
// HX-Request.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	block := "layout"
	if isFragment(req) {
		block = "content"
	}
	r.renderBlock(w, status, name, block, data)
}

// renderBlock executes one block of a page into a buffer first, so a
// template failure never leaves a half-written 200 response.
func (r *Renderer) renderBlock(w http.ResponseWriter, status int, page, block string, data any) {
	var buf bytes.Buffer
	t, ok := r.pages[page]
	if !ok {
		r.logger.Error("unknown page template", zap.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.logger.Error("render template",
			zap.String("page", page), zap.String("block", block), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError answers with the AppError status as a fragment, JSON, or the
// error page, depending on the request.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	e := apperr.As(err)
	if e.Status >= 500 {
		r.logger.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
	}

	switch {
	case isFragment(req):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(e.Status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(e.Message))
	case wantsJSON(req):
		renderJSON(w, e.Status, map[string]any{
			"error": map[string]any{"code": string(e.Code), "message": e.Message, "status": e.Status},
		})
	default:
		r.renderPageStatus(w, req, e.Status, "error", ErrorPageData{
			PageData:   PageData{Title: http.StatusText(e.Status), Version: r.version},
			StatusCode: e.Status,
			Message:    e.Message,
		})
	}
}

func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func isFragment(req *http.Request) bool {
	return req != nil && req.Header.Get("HX-Request") == "true"
}

func wantsJSON(req *http.Request) bool {
	return req != nil && strings.Contains(req.Header.Get("Accept"), "application/json")
}
