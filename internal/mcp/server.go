package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/croire045-rgb/collecte-plateform/internal/config"
	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var previewFileToolDef = mcp.NewTool("preview_file",
	mcp.WithDescription("Parse a local CSV or Excel file and return the preview table shown before submission."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path of the file to preview")),
	mcp.WithNumber("sheet", mcp.Description("Sheet index for workbooks, 0 based")),
	mcp.WithNumber("row_cap", mcp.Description("Maximum number of non-empty rows returned")),
)

var listTabsToolDef = mcp.NewTool("list_tabs",
	mcp.WithDescription("List the dashboard tabs of a role with their filters and actions."),
	mcp.WithString("role", mcp.Description("Role name (chef, aef, uef); empty lists every role")),
)

var listPageToolDef = mcp.NewTool("list_page",
	mcp.WithDescription("Load one page of a dashboard list from the backend."),
	mcp.WithString("role", mcp.Required(), mcp.Description("Role name")),
	mcp.WithString("tab", mcp.Required(), mcp.Description("Tab id")),
	mcp.WithNumber("page", mcp.Description("Page number, 1 based")),
	mcp.WithNumber("per_page", mcp.Description("Records per page")),
	mcp.WithObject("filters", mcp.Description("Filter values keyed by filter name")),
	mcp.WithString("search", mcp.Description("Free text search")),
)

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"preview_file": {
		def:     previewFileToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePreviewFile },
	},
	"list_tabs": {
		def:     listTabsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListTabs },
	},
	"list_page": {
		def:     listPageToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListPage },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the collecte tools registered.
// Tools listed in cfg.DisabledTools are skipped.
func NewServer(fetcher listing.Fetcher, reg *dashboard.Registry, cfg *config.Config, logger *zap.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"collecte",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(fetcher, reg, cfg, logger)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the tools over stdio.
func Run(fetcher listing.Fetcher, reg *dashboard.Registry, cfg *config.Config, logger *zap.Logger, version string) error {
	return server.ServeStdio(NewServer(fetcher, reg, cfg, logger, version))
}
