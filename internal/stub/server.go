// Package stub is a development backend serving the list and action
// endpoints of the dashboard registry from a SQLite store.
package stub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	"github.com/croire045-rgb/collecte-plateform/internal/db"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

// MaxPerPage caps the per_page parameter.
const MaxPerPage = 100

// Server implements the backend contract over db records.
type Server struct {
	db     *sql.DB
	reg    *dashboard.Registry
	logger *zap.Logger
	token  string
	now    func() time.Time
	mux    *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithToken fixes the anti-forgery token instead of generating one.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithClock sets the time source used for "today" counters.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the backend routes for every tab and action of reg.
func New(conn *sql.DB, reg *dashboard.Registry, logger *zap.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{db: conn, reg: reg, logger: logger, now: time.Now, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	if s.token == "" {
		s.token = newID(s.now())
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)

	endpoints := map[string]string{}
	for _, role := range reg.Roles {
		for _, tab := range role.Tabs {
			collection := Collection(role.Name, tab.ID)
			if prev, ok := endpoints[tab.Endpoint]; ok {
				s.logger.Warn("endpoint already served",
					zap.String("endpoint", tab.Endpoint),
					zap.String("by", prev),
					zap.String("skipped", collection))
			} else {
				endpoints[tab.Endpoint] = collection
				if err := handle(s.mux, "GET "+exactPattern(tab.Endpoint), s.listHandler(tab, collection)); err != nil {
					return nil, err
				}
			}
			for _, a := range tab.Actions {
				pattern := a.Method + " " + exactPattern(a.Path)
				if err := handle(s.mux, pattern, s.actionHandler(a, collection)); err != nil {
					return nil, err
				}
			}
		}
	}
	return s, nil
}

// Token returns the anti-forgery token handed to clients.
func (s *Server) Token() string {
	return s.token
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("elapsed", time.Since(start)))
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("development backend listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// exactPattern anchors a path ending in "/" so it does not match subpaths.
func exactPattern(path string) string {
	if strings.HasSuffix(path, "/") {
		return path + "{$}"
	}
	return path
}

// handle registers a route, turning the mux's conflict panic into an error.
func handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("route %s: %v", pattern, r)
		}
	}()
	mux.HandleFunc(pattern, h)
	return nil
}

var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="utf-8"><meta name="csrf-token" content="{{.}}"><title>collecte backend</title></head>
<body>
<form method="post"><input type="hidden" name="csrfmiddlewaretoken" value="{{.}}"></form>
</body>
</html>
`))

// handleIndex hands out the anti-forgery token as a cookie and a form field.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     listing.CSRFCookieName,
		Value:    s.token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, s.token); err != nil {
		s.logger.Error("render index", zap.Error(err))
	}
}

func (s *Server) listHandler(tab *dashboard.Tab, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		perPage := intParam(q.Get("per_page"), tab.PageSize)
		if perPage > MaxPerPage {
			perPage = MaxPerPage
		}
		page := intParam(q.Get("page"), 1)

		params := db.ListParams{
			Collection: collection,
			Filters:    map[string]string{},
			Search:     q.Get(tab.SearchParam),
		}
		for _, f := range tab.Filters {
			v := strings.TrimSpace(q.Get(f.Name))
			if v == "" {
				continue
			}
			switch f.Range {
			case "from":
				params.Ranges = append(params.Ranges, db.Range{Field: f.RecordField(), Op: ">=", Value: v})
			case "to":
				params.Ranges = append(params.Ranges, db.Range{Field: f.RecordField(), Op: "<=", Value: v})
			default:
				params.Filters[f.RecordField()] = v
			}
		}

		// Out-of-range pages fall back to the last page.
		_, total, err := db.List(s.db, db.ListParams{
			Collection: params.Collection, Filters: params.Filters,
			Ranges: params.Ranges, Search: params.Search, Limit: 1,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		totalPages := int(math.Ceil(float64(total) / float64(perPage)))
		if totalPages < 1 {
			totalPages = 1
		}
		if page > totalPages {
			page = totalPages
		}
		params.Limit = perPage
		params.Offset = (page - 1) * perPage

		records, _, err := db.List(s.db, params)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		stats, err := db.Stats(s.db, collection, s.now())
		if err != nil {
			s.fail(w, r, err)
			return
		}

		items := make([]map[string]any, len(records))
		for i, rec := range records {
			items[i] = rec.Data
		}

		body := map[string]any{
			"success": true,
			"pagination": listing.Pagination{
				Page:        page,
				PerPage:     perPage,
				TotalPages:  totalPages,
				Total:       total,
				HasPrevious: page > 1,
				HasNext:     page < totalPages,
			},
		}
		setPath(body, itemsKey(tab.ItemsPath), items)
		if stats != nil {
			body["stats"] = nestStats(stats)
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (s *Server) actionHandler(a dashboard.Action, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.validToken(r) {
			s.fail(w, r, apperr.NewCSRFRejected())
			return
		}
		id := r.PathValue("id")

		var input map[string]any
		if r.ContentLength != 0 && strings.Contains(r.Header.Get("Content-Type"), "json") {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&input); err != nil {
				s.fail(w, r, apperr.NewInvalidRequest("invalid JSON body"))
				return
			}
		}

		var err error
		switch {
		case a.Effect.Delete:
			err = db.Delete(s.db, collection, id)
		default:
			set := make(map[string]any, len(a.Effect.Set)+1)
			for k, v := range a.Effect.Set {
				set[k] = v
			}
			if a.BodyField != "" {
				if v, ok := input[a.BodyField]; ok {
					set[a.BodyField] = v
				}
			}
			_, err = db.Update(s.db, collection, id, set)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}

		s.logger.Info("action applied",
			zap.String("collection", collection),
			zap.String("action", a.Name),
			zap.String("id", id))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("%s: done for %s", a.Label, id),
		})
	}
}

// validToken accepts a request whose header token matches both the cookie
// and the issued token.
func (s *Server) validToken(r *http.Request) bool {
	header := r.Header.Get(listing.CSRFHeader)
	if header == "" || header != s.token {
		return false
	}
	c, err := r.Cookie(listing.CSRFCookieName)
	return err == nil && c.Value == header
}

// fail answers with the backend's failure shape.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	aErr := apperr.As(err)
	if aErr.Status >= 500 {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, aErr.Status, map[string]any{
		"success": false,
		"message": aErr.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func intParam(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// itemsKey turns "$.data.items" into ["data", "items"].
func itemsKey(itemsPath string) []string {
	p := strings.TrimPrefix(strings.TrimPrefix(itemsPath, "$"), ".")
	if p == "" || strings.ContainsAny(p, "[]*") {
		return []string{"items"}
	}
	return strings.Split(p, ".")
}

func setPath(m map[string]any, path []string, v any) {
	for _, k := range path[:len(path)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

// nestStats turns "par_role.AEF" counters back into nested objects.
func nestStats(stats map[string]int) map[string]any {
	out := map[string]any{}
	for k, v := range stats {
		setPath(out, strings.Split(k, "."), v)
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
