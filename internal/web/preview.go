package web

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/preview"
)

// sessionTTL is how long an idle preview session is kept.
const sessionTTL = time.Hour

// previewStore holds one preview engine per uploaded file.
type previewStore struct {
	mu       sync.Mutex
	sessions map[string]*previewSession
	now      func() time.Time
}

type previewSession struct {
	engine *preview.Engine
	legacy bool
	seen   time.Time
}

func newPreviewStore() *previewStore {
	return &previewStore{sessions: map[string]*previewSession{}, now: time.Now}
}

func (s *previewStore) add(e *preview.Engine, legacy bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, sess := range s.sessions {
		if now.Sub(sess.seen) > sessionTTL {
			delete(s.sessions, id)
		}
	}
	id := ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0)).String()
	s.sessions[id] = &previewSession{engine: e, legacy: legacy, seen: now}
	return id
}

func (s *previewStore) get(id string) (*previewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NewNotFound("preview", id)
	}
	sess.seen = s.now()
	return sess, nil
}

func (s *previewStore) remove(id string) (*previewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NewNotFound("preview", id)
	}
	delete(s.sessions, id)
	return sess, nil
}

func (s *previewStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (h *Handlers) previewData(id string, legacy bool, rowCap int, t preview.Table) PreviewPageData {
	return PreviewPageData{
		PageData:  h.page("Preview", "preview"),
		SessionID: id,
		Legacy:    legacy,
		RowCap:    rowCap,
		Table:     t,
	}
}

func (h *Handlers) renderPreview(w http.ResponseWriter, r *http.Request, data PreviewPageData) {
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"session": data.SessionID,
			"table":   data.Table,
		})
		return
	}
	h.renderer.renderPage(w, r, "preview", data)
}

// HandlePreviewForm handles GET /preview: the empty upload form.
func (h *Handlers) HandlePreviewForm(w http.ResponseWriter, r *http.Request) {
	legacy := parseBoolParam(r, "legacy")
	h.renderer.renderPage(w, r, "preview", h.previewData("", legacy, h.rowCap(legacy, preview.FormatCSV), preview.Table{}))
}

// HandlePreviewUpload handles POST /preview: parses an uploaded file.
func (h *Handlers) HandlePreviewUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderer.renderError(w, r, apperr.NewInvalidRequest(
				fmt.Sprintf("file exceeds the %s upload limit", preview.FormatFileSize(h.cfg.MaxUploadBytes))))
			return
		}
		h.renderer.renderError(w, r, apperr.NewInvalidRequest("invalid upload form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderer.renderError(w, r, apperr.NewInvalidRequest("a file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.renderer.renderError(w, r, apperr.NewInvalidRequest("could not read the uploaded file"))
		return
	}

	legacy := parseBoolParam(r, "legacy") || r.FormValue("legacy") == "1"
	format, _, detectErr := h.detector.Detect(header.Filename)
	rowCap := h.rowCap(legacy, format)
	if detectErr != nil {
		rowCap = h.cfg.PreviewRowCap
	}

	engine := preview.NewEngine(preview.Options{RowCap: rowCap, Detector: h.detector, MaxBytes: h.cfg.MaxUploadBytes})
	res := engine.Load(r.Context(), preview.FromBytes(header.Filename, data))
	if res.Err != nil {
		h.logger.Info("preview failed", zap.String("file", header.Filename), zap.Error(res.Err))
	}

	id := h.previews.add(engine, legacy)
	h.renderPreview(w, r, h.previewData(id, legacy, rowCap, engine.Current()))
}

// HandlePreviewSheet handles GET /preview/{id}/sheets/{n}: switches sheets.
func (h *Handlers) HandlePreviewSheet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.previews.get(id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		h.renderer.renderError(w, r, apperr.NewInvalidRequest("sheet index must be an integer"))
		return
	}
	table, ok := sess.engine.SelectSheet(n)
	if !ok {
		h.renderer.renderError(w, r, apperr.NewInvalidRequest(fmt.Sprintf("sheet %d is not available", n)))
		return
	}
	h.renderPreview(w, r, h.previewData(id, sess.legacy, sess.engine.RowCap(), table))
}

// HandlePreviewDelete handles DELETE /preview/{id}: removes the file.
func (h *Handlers) HandlePreviewDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.previews.remove(id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	sess.engine.Reset()

	if isFragment(r) {
		h.renderer.renderPage(w, r, "preview",
			h.previewData("", sess.legacy, sess.engine.RowCap(), preview.Table{}))
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"removed": true, "session": id})
		return
	}
	http.Redirect(w, r, "/preview", http.StatusSeeOther)
}

// rowCap picks the display cap: the legacy upload form shows fewer CSV rows.
func (h *Handlers) rowCap(legacy bool, f preview.Format) int {
	if legacy && f == preview.FormatCSV && h.cfg.LegacyCSVRowCap > 0 {
		return h.cfg.LegacyCSVRowCap
	}
	if h.cfg.PreviewRowCap > 0 {
		return h.cfg.PreviewRowCap
	}
	return preview.DefaultRowCap
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
