package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/croire045-rgb/collecte-plateform/internal/config"
	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	"github.com/croire045-rgb/collecte-plateform/internal/db"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
	"github.com/croire045-rgb/collecte-plateform/internal/mcp"
	"github.com/croire045-rgb/collecte-plateform/internal/preview"
	"github.com/croire045-rgb/collecte-plateform/internal/stub"
	"github.com/croire045-rgb/collecte-plateform/internal/tui"
	"github.com/croire045-rgb/collecte-plateform/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, logger *zap.Logger) *cli.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &cli.App{
		Name:    "collecte",
		Usage:   "Dashboards and file preview for the collecte platform",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(cfg, logger),
			previewCmd(cfg),
			listCmd(cfg),
			actionCmd(cfg),
			tabsCmd(cfg),
			tuiCmd(cfg),
			mcpCmd(cfg, logger),
			stubCmd(cfg, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func backendFlag() cli.Flag {
	return &cli.StringFlag{Name: "backend", Aliases: []string{"b"}, Usage: "Backend base URL (overrides backend_url)"}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{Name: "format", Value: "json", Usage: "Output format: json|table"}
}

// serveCmd creates the serve command.
func serveCmd(cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
			backendFlag(),
		},
		Action: func(c *cli.Context) error {
			reg, err := loadRegistry(cfg)
			if err != nil {
				return outputError(err)
			}
			client, err := newClient(c, cfg)
			if err != nil {
				return outputError(err)
			}
			srv, err := web.NewServer(client, reg, cfg, logger, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(err)
			}
			logger.Info("using backend", zap.String("url", client.BaseURL()))
			return web.Run(srv, logger)
		},
	}
}

// previewCmd creates the preview command.
func previewCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Preview a CSV or Excel file as it would be shown before submission",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "sheet", Aliases: []string{"s"}, Usage: "Sheet index for workbooks, 0 based"},
			&cli.IntFlag{Name: "cap", Usage: "Maximum non-empty rows shown (defaults to preview_row_cap)"},
			&cli.BoolFlag{Name: "legacy-csv", Usage: "Use the CSV-only preview cap (legacy_csv_row_cap)"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Preview again every time the file changes"},
			formatFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(apperr.NewInvalidRequest("expected exactly one file"))
			}
			path := c.Args().First()

			detector, err := preview.NewDetector(cfg.AcceptPatterns)
			if err != nil {
				return outputError(err)
			}
			rowCap := cfg.PreviewRowCap
			if c.Bool("legacy-csv") {
				if f, _, err := detector.Detect(path); err == nil && f == preview.FormatCSV {
					rowCap = cfg.LegacyCSVRowCap
				}
			}
			if c.IsSet("cap") {
				rowCap = c.Int("cap")
			}
			engine := preview.NewEngine(preview.Options{RowCap: rowCap, Detector: detector, MaxBytes: cfg.MaxUploadBytes})
			format := c.String("format")
			sheet := c.Int("sheet")

			if c.Bool("watch") {
				ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return preview.Watch(ctx, path, engine, func(t preview.Table, err error) {
					if err == nil && sheet != 0 {
						if selected, ok := engine.SelectSheet(sheet); ok {
							t = selected
						}
					}
					if err := writePreview(c.App.Writer, format, t); err != nil {
						fmt.Fprintf(c.App.ErrWriter, "error: %v\n", err)
					}
				})
			}

			f, err := preview.OpenLocal(path)
			if err != nil {
				return outputError(apperr.NewNotFound("file", path))
			}
			res := engine.Load(c.Context, f)
			if res.Err != nil {
				return outputError(res.Err)
			}
			t := res.Table
			if sheet != 0 {
				selected, ok := engine.SelectSheet(sheet)
				if !ok {
					return outputError(apperr.NewInvalidRequest(fmt.Sprintf("sheet %d is not available", sheet)))
				}
				t = selected
			}
			return writePreview(c.App.Writer, format, t)
		},
	}
}

// listCmd creates the list command.
func listCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "Load one page of a dashboard list",
		ArgsUsage: "<role> <tab>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Value: 1, Usage: "Page number"},
			&cli.IntFlag{Name: "per-page", Usage: "Records per page (defaults to the tab's page size)"},
			&cli.StringSliceFlag{Name: "filter", Aliases: []string{"f"}, Usage: "Filter as name=value (repeatable)"},
			&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "Free text search"},
			formatFlag(),
			backendFlag(),
		},
		Action: func(c *cli.Context) error {
			role, tab, err := lookupTab(cfg, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return outputError(err)
			}
			filters, err := parseFilters(c.StringSlice("filter"))
			if err != nil {
				return outputError(err)
			}

			q := listing.NewQuery(tab.PageSize)
			q.Page = c.Int("page")
			if n := c.Int("per-page"); n > 0 {
				q.PageSize = n
			}
			for name, value := range filters {
				if _, ok := tab.Filter(name); !ok {
					return outputError(apperr.NewInvalidRequest(fmt.Sprintf("unknown filter %q for %s/%s", name, role.Name, tab.ID)))
				}
				q.Filters[name] = value
			}
			q.Search = c.String("search")

			client, err := newClient(c, cfg)
			if err != nil {
				return outputError(err)
			}
			src := tab.Source()
			page, err := client.FetchPage(c.Context, src.Endpoint, q, src.ItemsPath, src.SearchParam)
			if err != nil {
				return outputError(err)
			}

			out := listOutput{
				Role:       role.Name,
				Tab:        tab.ID,
				Headers:    tab.Headers(),
				Rows:       tab.Rows(page.Items),
				Pagination: page.Pagination,
				Summary:    listing.BuildControls(page.Pagination, tab.Noun).Summary,
				Stats:      tab.StatValues(page.Stats),
			}
			if c.String("format") == "table" {
				return writeList(c.App.Writer, out)
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// listOutput is the list command result.
type listOutput struct {
	Role       string                `json:"role"`
	Tab        string                `json:"tab"`
	Headers    []string              `json:"headers"`
	Rows       []dashboard.Row       `json:"rows"`
	Pagination listing.Pagination    `json:"pagination"`
	Summary    string                `json:"summary,omitempty"`
	Stats      []dashboard.StatValue `json:"stats,omitempty"`
}

// actionCmd creates the action command.
func actionCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "action",
		Usage:     "Run an action on one record (approve, reject, ban, ...)",
		ArgsUsage: "<role> <tab> <action> <id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Value asked by the action (e.g. a rejection reason)"},
			backendFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 4 {
				return outputError(apperr.NewInvalidRequest("expected <role> <tab> <action> <id>"))
			}
			_, tab, err := lookupTab(cfg, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return outputError(err)
			}
			action, err := tab.Action(c.Args().Get(2))
			if err != nil {
				return outputError(err)
			}
			id := c.Args().Get(3)

			in := bufio.NewReader(c.App.Reader)
			input := c.String("input")
			if action.Prompt != "" && input == "" && !c.Bool("yes") {
				fmt.Fprintf(c.App.ErrWriter, "%s: ", action.Prompt)
				input = readLine(in)
			}
			if action.Confirm != "" && !c.Bool("yes") {
				fmt.Fprintf(c.App.ErrWriter, "%s [y/N] ", action.Confirm)
				if answer := strings.ToLower(readLine(in)); answer != "y" && answer != "yes" {
					return outputError(apperr.NewInvalidRequest("action cancelled"))
				}
			}

			client, err := newClient(c, cfg)
			if err != nil {
				return outputError(err)
			}
			var body any
			if b := action.Body(input); b != nil {
				body = b
			}
			result, err := client.Do(c.Context, action.Method, action.Resolve(id), body)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{
				"action":  action.Name,
				"id":      id,
				"success": result.Success,
				"message": result.Message,
			})
		},
	}
}

// tabsCmd creates the tabs command.
func tabsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "tabs",
		Usage:     "Show the tabs of a role (or of every role)",
		ArgsUsage: "[role]",
		Action: func(c *cli.Context) error {
			reg, err := loadRegistry(cfg)
			if err != nil {
				return outputError(err)
			}
			names := reg.RoleNames()
			if c.NArg() > 0 {
				if _, err := reg.Role(c.Args().First()); err != nil {
					return outputError(err)
				}
				names = []string{c.Args().First()}
			}

			type tabInfo struct {
				ID       string   `json:"id"`
				Title    string   `json:"title"`
				Endpoint string   `json:"endpoint"`
				PageSize int      `json:"page_size"`
				Filters  []string `json:"filters,omitempty"`
				Actions  []string `json:"actions,omitempty"`
			}
			out := make(map[string][]tabInfo, len(names))
			for _, name := range names {
				role, _ := reg.Role(name)
				infos := make([]tabInfo, 0, len(role.Tabs))
				for _, t := range role.Tabs {
					info := tabInfo{ID: t.ID, Title: t.Title, Endpoint: t.Endpoint, PageSize: t.PageSize}
					for _, f := range t.Filters {
						info.Filters = append(info.Filters, f.Name)
					}
					for _, a := range t.Actions {
						info.Actions = append(info.Actions, a.Name)
					}
					infos = append(infos, info)
				}
				out[name] = infos
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// tuiCmd creates the tui command.
func tuiCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Interactive terminal dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "Dashboard role (defaults to role)"},
			backendFlag(),
		},
		Action: func(c *cli.Context) error {
			reg, err := loadRegistry(cfg)
			if err != nil {
				return outputError(err)
			}
			name := c.String("role")
			if name == "" {
				name = cfg.Role
			}
			role, err := reg.Role(name)
			if err != nil {
				return outputError(err)
			}
			client, err := newClient(c, cfg)
			if err != nil {
				return outputError(err)
			}
			return tui.Run(c.Context, role, client, cfg.SearchDebounce())
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the preview and list tools over MCP (stdio)",
		Flags: []cli.Flag{backendFlag()},
		Action: func(c *cli.Context) error {
			if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
				logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
			}
			reg, err := loadRegistry(cfg)
			if err != nil {
				return outputError(err)
			}
			client, err := newClient(c, cfg)
			if err != nil {
				return outputError(err)
			}
			return mcp.Run(client, reg, cfg, logger, Version)
		},
	}
}

// stubCmd creates the stub command.
func stubCmd(cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "stub",
		Usage: "Run the development backend with demo data",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8000, Usage: "Port to listen on"},
			&cli.StringFlag{Name: "db", Usage: "Directory of the SQLite database (in memory when empty)"},
			&cli.StringFlag{Name: "seed", Usage: "JSON seed file (built-in demo data when empty)"},
		},
		Action: func(c *cli.Context) error {
			reg, err := loadRegistry(cfg)
			if err != nil {
				return outputError(err)
			}
			seed, err := stub.LoadSeed(c.String("seed"))
			if err != nil {
				return outputError(err)
			}

			conn, err := openStubDB(c.String("db"), cfg)
			if err != nil {
				return outputError(err)
			}
			defer conn.Close()

			n, err := seed.Apply(conn, reg, time.Now())
			if err != nil {
				return outputError(err)
			}
			logger.Info("seeded development backend", zap.Int("records", n))

			srv, err := stub.New(conn, reg, logger)
			if err != nil {
				return outputError(err)
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, fmt.Sprintf("%s:%d", c.String("bind"), c.Int("port")))
		},
	}
}

// Helper functions

func loadRegistry(cfg *config.Config) (*dashboard.Registry, error) {
	return dashboard.LoadRegistry(cfg.ListsFile, cfg.DefaultPageSize)
}

func lookupTab(cfg *config.Config, roleName, tabID string) (*dashboard.Role, *dashboard.Tab, error) {
	if roleName == "" || tabID == "" {
		return nil, nil, apperr.NewInvalidRequest("expected <role> <tab>")
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	role, err := reg.Role(roleName)
	if err != nil {
		return nil, nil, err
	}
	tab, err := role.Tab(tabID)
	if err != nil {
		return nil, nil, err
	}
	return role, tab, nil
}

func newClient(c *cli.Context, cfg *config.Config) (*listing.Client, error) {
	backend := cfg.BackendURL
	if b := c.String("backend"); b != "" {
		backend = b
	}
	return listing.NewClient(backend, listing.WithTimeout(cfg.RequestTimeout()))
}

// openStubDB opens the file database in dir, or a private in-memory one.
func openStubDB(dir string, cfg *config.Config) (*sql.DB, error) {
	if dir == "" {
		return db.OpenMemory()
	}
	conn, err := db.Init(dir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(conn, cfg)
	return conn, nil
}

// parseFilters splits name=value pairs.
func parseFilters(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, apperr.NewInvalidRequest(fmt.Sprintf("filter %q must be name=value", p))
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var aErr *apperr.AppError
	if errors.As(err, &aErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", aErr.Code, aErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

var (
	noticeStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// writePreview prints a preview table as JSON or as a terminal table.
func writePreview(w io.Writer, format string, t preview.Table) error {
	if format != "table" {
		return outputJSON(w, t)
	}
	switch t.State {
	case preview.StateError:
		_, err := fmt.Fprintln(w, errorStyle.Render(t.Message))
		return err
	case preview.StateEmpty:
		_, err := fmt.Fprintln(w, t.Message)
		return err
	}

	if len(t.SheetNames) > 1 {
		fmt.Fprintf(w, "%s (sheet %d of %d)\n", t.SheetNames[t.SheetIndex], t.SheetIndex+1, len(t.SheetNames))
	}
	tbl := table.New().Border(lipgloss.NormalBorder()).Headers(t.Headers...)
	for _, row := range t.Rows {
		tbl.Row(row...)
	}
	fmt.Fprintln(w, tbl.Render())
	fmt.Fprintln(w, noticeStyle.Render(t.Notice))
	if t.Hint != "" {
		fmt.Fprintln(w, noticeStyle.Render(t.Hint))
	}
	return nil
}

// writeList prints one list page as a terminal table.
func writeList(w io.Writer, out listOutput) error {
	if len(out.Stats) > 0 {
		parts := make([]string, len(out.Stats))
		for i, s := range out.Stats {
			parts[i] = fmt.Sprintf("%s: %d", s.Label, s.Value)
		}
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}
	tbl := table.New().Border(lipgloss.NormalBorder()).Headers(out.Headers...)
	for _, row := range out.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = strings.Join(strings.Fields(c.Text), " ")
		}
		tbl.Row(cells...)
	}
	fmt.Fprintln(w, tbl.Render())
	if len(out.Rows) == 0 {
		fmt.Fprintln(w, "No records found.")
	}
	if out.Summary != "" {
		fmt.Fprintln(w, out.Summary)
	}
	return nil
}
