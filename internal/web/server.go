package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/croire045-rgb/collecte-plateform/internal/config"
	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/preview"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewHandler builds the routes of the dashboard front end.
func NewHandler(backend Backend, reg *dashboard.Registry, cfg *config.Config, logger *zap.Logger, version string) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Templates and static files are embedded under their directory names.
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to create template sub-FS: %w", err)
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create static sub-FS: %w", err)
	}

	detector, err := preview.NewDetector(cfg.AcceptPatterns)
	if err != nil {
		return nil, err
	}

	h := &Handlers{
		backend:  backend,
		reg:      reg,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version, logger),
		logger:   logger,
		previews: newPreviewStore(),
		detector: detector,
	}

	defaultRole := cfg.Role
	if _, err := reg.Role(defaultRole); err != nil {
		defaultRole = reg.RoleNames()[0]
	}

	mux := http.NewServeMux()

	// Method and wildcard patterns (Go 1.22 ServeMux).
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/"+defaultRole, http.StatusFound)
	})
	mux.HandleFunc("GET /preview", h.HandlePreviewForm)
	mux.HandleFunc("POST /preview", h.HandlePreviewUpload)
	mux.HandleFunc("GET /preview/{id}/sheets/{n}", h.HandlePreviewSheet)
	mux.HandleFunc("DELETE /preview/{id}", h.HandlePreviewDelete)
	mux.HandleFunc("GET /{role}", h.HandleRole)
	mux.HandleFunc("GET /{role}/{tab}", h.HandleList)
	mux.HandleFunc("POST /{role}/{tab}/actions/{action}/{id}", h.HandleAction)

	// Static files are one level deep, which keeps the route more specific
	// than /{role}/{tab}.
	mux.Handle("GET /static/{file}", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return securityHeaders(sameOrigin(h.renderer, mux)), nil
}

// NewServer creates and configures the HTTP server for the dashboard UI.
func NewServer(backend Backend, reg *dashboard.Registry, cfg *config.Config, logger *zap.Logger, version, bind string, port int) (*http.Server, error) {
	handler, err := NewHandler(backend, reg, cfg, logger, version)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders sets CSP and framing headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// sameOrigin rejects state-changing requests sent from another origin.
func sameOrigin(r *Renderer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if origin := req.Header.Get("Origin"); origin != "" {
				u, err := url.Parse(origin)
				if err != nil || u.Host != req.Host {
					r.renderError(w, req, apperr.NewCSRFRejected())
					return
				}
			}
		}
		next.ServeHTTP(w, req)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("collecte UI running", zap.String("url", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
