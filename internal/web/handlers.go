package web

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/croire045-rgb/collecte-plateform/internal/config"
	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
	"github.com/croire045-rgb/collecte-plateform/internal/preview"
)

// Backend is the dashboard API the front end reads from and acts on.
// *listing.Client implements it.
type Backend interface {
	listing.Fetcher
	Do(ctx context.Context, method, path string, body any) (*listing.ActionResult, error)
}

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	backend  Backend
	reg      *dashboard.Registry
	cfg      *config.Config
	renderer *Renderer
	logger   *zap.Logger
	previews *previewStore
	detector *preview.Detector
}

func (h *Handlers) page(title, nav string) PageData {
	return PageData{
		Title:   title,
		Version: h.renderer.version,
		Nav:     nav,
		Roles:   h.reg.RoleNames(),
	}
}

// HandleRole handles GET /{role}: the dashboard opened on its first tab.
func (h *Handlers) HandleRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.reg.Role(r.PathValue("role"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if len(role.Tabs) == 0 {
		h.renderer.renderError(w, r, apperr.NewNotFound("tab", role.Name))
		return
	}
	h.renderList(w, r, role, role.Tabs[0])
}

// HandleList handles GET /{role}/{tab}: one page of a list.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	role, tab, err := h.lookup(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderList(w, r, role, tab)
}

func (h *Handlers) lookup(r *http.Request) (*dashboard.Role, *dashboard.Tab, error) {
	role, err := h.reg.Role(r.PathValue("role"))
	if err != nil {
		return nil, nil, err
	}
	tab, err := role.Tab(r.PathValue("tab"))
	if err != nil {
		return nil, nil, err
	}
	return role, tab, nil
}

// renderList loads the requested page through a list controller and renders
// whatever the controller rendered, including an inline error row.
func (h *Handlers) renderList(w http.ResponseWriter, r *http.Request, role *dashboard.Role, tab *dashboard.Tab) {
	q := queryFrom(tab, r.URL.Query())
	view := newListView(tab, "/"+role.Name+"/"+tab.ID, q)
	c := listing.NewController(h.backend, tab.Source(), view,
		listing.WithQuery(q),
		listing.WithContext(r.Context()),
		listing.WithDebounce(h.cfg.SearchDebounce()))
	defer c.Close()

	status := http.StatusOK
	if err := c.Reload(r.Context()); err != nil {
		status = apperr.As(err).Status
		h.logger.Warn("list load failed",
			zap.String("role", role.Name),
			zap.String("tab", tab.ID),
			zap.Error(err))
	}
	lv := view.view()

	if wantsJSON(r) {
		renderJSON(w, status, map[string]any{
			"role": role.Name,
			"tab":  tab.ID,
			"list": lv,
		})
		return
	}

	data := DashboardPageData{
		PageData: h.page(role.Title+" - "+tab.Title, role.Name),
		Role:     role,
		Tab:      tab,
		List:     lv,

		DebounceMS: int(h.cfg.SearchDebounce().Milliseconds()),
	}
	// The search box and pager only refresh the list region.
	if r.Header.Get("HX-Target") == "list" {
		h.renderer.renderBlock(w, status, "dashboard", "list", data)
		return
	}
	h.renderer.renderPageStatus(w, r, status, "dashboard", data)
}

// HandleAction handles POST /{role}/{tab}/actions/{action}/{id}.
func (h *Handlers) HandleAction(w http.ResponseWriter, r *http.Request) {
	role, tab, err := h.lookup(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	action, err := tab.Action(r.PathValue("action"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		h.renderer.renderError(w, r, apperr.NewInvalidRequest("record id is required"))
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, apperr.NewInvalidRequest("invalid form data"))
		return
	}

	var body any
	if b := action.Body(r.FormValue("input")); b != nil {
		body = b
	}
	result, err := h.backend.Do(r.Context(), action.Method, action.Resolve(id), body)
	if err != nil {
		h.logger.Warn("action failed",
			zap.String("action", action.Name),
			zap.String("id", id),
			zap.Error(err))
		if isFragment(r) {
			h.renderer.renderBlock(w, apperr.As(err).Status, "dashboard", "alert",
				AlertData{Tone: "danger", Message: apperr.UserMessage(err)})
			return
		}
		h.renderer.renderError(w, r, err)
		return
	}

	message := result.Message
	if message == "" {
		message = action.Label + ": done"
	}

	if isFragment(r) {
		h.renderer.renderBlock(w, http.StatusOK, "dashboard", "alert", AlertData{Tone: "success", Message: message})
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": message,
			"action":  action.Name,
			"id":      id,
		})
		return
	}
	http.Redirect(w, r, "/"+role.Name+"/"+tab.ID, http.StatusSeeOther)
}
