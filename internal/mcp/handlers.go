package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/croire045-rgb/collecte-plateform/internal/config"
	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
	"github.com/croire045-rgb/collecte-plateform/internal/preview"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	fetcher listing.Fetcher
	reg     *dashboard.Registry
	cfg     *config.Config
	logger  *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(fetcher listing.Fetcher, reg *dashboard.Registry, cfg *config.Config, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{fetcher: fetcher, reg: reg, cfg: cfg, logger: logger}
}

// PreviewFileRequest represents the arguments for preview_file.
type PreviewFileRequest struct {
	Path   string `json:"path"`
	Sheet  int    `json:"sheet,omitempty"`
	RowCap int    `json:"row_cap,omitempty"`
}

// ListTabsRequest represents the arguments for list_tabs.
type ListTabsRequest struct {
	Role string `json:"role,omitempty"`
}

// ListPageRequest represents the arguments for list_page.
type ListPageRequest struct {
	Role    string            `json:"role"`
	Tab     string            `json:"tab"`
	Page    int               `json:"page,omitempty"`
	PerPage int               `json:"per_page,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
	Search  string            `json:"search,omitempty"`
}

// TabInfo describes one tab for list_tabs.
type TabInfo struct {
	Role     string   `json:"role"`
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Endpoint string   `json:"endpoint"`
	PageSize int      `json:"page_size"`
	Filters  []string `json:"filters,omitempty"`
	Search   string   `json:"search_param"`
	Actions  []string `json:"actions,omitempty"`
}

// PageOutput is the list_page result.
type PageOutput struct {
	Role       string                `json:"role"`
	Tab        string                `json:"tab"`
	Headers    []string              `json:"headers"`
	Rows       []dashboard.Row       `json:"rows"`
	Pagination listing.Pagination    `json:"pagination"`
	Summary    string                `json:"summary,omitempty"`
	Stats      []dashboard.StatValue `json:"stats,omitempty"`
}

// HandlePreviewFile handles the preview_file tool call.
func (h *Handlers) HandlePreviewFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PreviewFileRequest](req)
	if err != nil {
		return errorResult(apperr.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return errorResult(apperr.NewInvalidRequest("path is required")), nil
	}

	detector, err := preview.NewDetector(h.cfg.AcceptPatterns)
	if err != nil {
		return errorResult(err), nil
	}
	rowCap := input.RowCap
	if rowCap <= 0 {
		rowCap = h.cfg.PreviewRowCap
	}

	f, err := preview.OpenLocal(input.Path)
	if err != nil {
		return errorResult(apperr.NewNotFound("file", input.Path)), nil
	}
	engine := preview.NewEngine(preview.Options{RowCap: rowCap, Detector: detector, MaxBytes: h.cfg.MaxUploadBytes})
	res := engine.Load(ctx, f)
	if res.Err != nil {
		h.logger.Debug("preview failed", zap.String("path", input.Path), zap.Error(res.Err))
		return errorResult(res.Err), nil
	}

	table := res.Table
	if input.Sheet != 0 {
		t, ok := engine.SelectSheet(input.Sheet)
		if !ok {
			return errorResult(apperr.NewInvalidRequest(fmt.Sprintf("sheet %d is not available", input.Sheet))), nil
		}
		table = t
	}
	return successResult(table)
}

// HandleListTabs handles the list_tabs tool call.
func (h *Handlers) HandleListTabs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListTabsRequest](req)
	if err != nil {
		return errorResult(apperr.NewInvalidRequest(err.Error())), nil
	}

	roles := h.reg.RoleNames()
	if input.Role != "" {
		if _, err := h.reg.Role(input.Role); err != nil {
			return errorResult(err), nil
		}
		roles = []string{input.Role}
	}

	tabs := make([]TabInfo, 0)
	for _, name := range roles {
		role, _ := h.reg.Role(name)
		for _, tab := range role.Tabs {
			info := TabInfo{
				Role:     role.Name,
				ID:       tab.ID,
				Title:    tab.Title,
				Endpoint: tab.Endpoint,
				PageSize: tab.PageSize,
				Search:   tab.SearchParam,
			}
			for _, f := range tab.Filters {
				info.Filters = append(info.Filters, f.Name)
			}
			for _, a := range tab.Actions {
				info.Actions = append(info.Actions, a.Name)
			}
			tabs = append(tabs, info)
		}
	}
	return successResult(map[string]any{"tabs": tabs})
}

// HandleListPage handles the list_page tool call.
func (h *Handlers) HandleListPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListPageRequest](req)
	if err != nil {
		return errorResult(apperr.NewInvalidRequest(err.Error())), nil
	}
	role, err := h.reg.Role(input.Role)
	if err != nil {
		return errorResult(err), nil
	}
	tab, err := role.Tab(input.Tab)
	if err != nil {
		return errorResult(err), nil
	}

	q := listing.NewQuery(tab.PageSize)
	if input.Page > 0 {
		q.Page = input.Page
	}
	if input.PerPage > 0 {
		q.PageSize = input.PerPage
	}
	for _, name := range sortedKeys(input.Filters) {
		if _, ok := tab.Filter(name); !ok {
			return errorResult(apperr.NewInvalidRequest(fmt.Sprintf("unknown filter %q for %s/%s", name, role.Name, tab.ID))), nil
		}
		q.Filters[name] = input.Filters[name]
	}
	q.Search = input.Search

	src := tab.Source()
	page, err := h.fetcher.FetchPage(ctx, src.Endpoint, q, src.ItemsPath, src.SearchParam)
	if err != nil {
		h.logger.Warn("list_page failed",
			zap.String("role", role.Name), zap.String("tab", tab.ID), zap.Error(err))
		return errorResult(err), nil
	}

	return successResult(PageOutput{
		Role:       role.Name,
		Tab:        tab.ID,
		Headers:    tab.Headers(),
		Rows:       tab.Rows(page.Items),
		Pagination: page.Pagination,
		Summary:    listing.BuildControls(page.Pagination, tab.Noun).Summary,
		Stats:      tab.StatValues(page.Stats),
	})
}

// decode maps MCP request arguments onto a typed struct through JSON.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("invalid arguments: %w", err)
	}
	return result, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errorResult creates an MCP error result from any error.
// INTERNAL errors never carry details; their cause may name local paths.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var aErr *apperr.AppError
	if errors.As(err, &aErr) {
		errorObj := map[string]any{
			"code":    aErr.Code,
			"message": aErr.Message,
			"status":  aErr.Status,
		}
		if aErr.Code != apperr.ErrInternal && aErr.Details != nil {
			errorObj["details"] = aErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    apperr.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
