package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/croire045-rgb/collecte-plateform/internal/config"
	"github.com/croire045-rgb/collecte-plateform/internal/dashboard"
	"github.com/croire045-rgb/collecte-plateform/internal/db"
	apperr "github.com/croire045-rgb/collecte-plateform/internal/errors"
	"github.com/croire045-rgb/collecte-plateform/internal/listing"
	"github.com/croire045-rgb/collecte-plateform/internal/stub"
)

// testSetup starts a seeded development backend and returns handlers reading from it.
func testSetup(t *testing.T) (*Handlers, *config.Config) {
	t.Helper()

	reg, err := dashboard.LoadRegistry("", 20)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	seed, err := stub.LoadSeed("")
	if err != nil {
		t.Fatalf("failed to load seed: %v", err)
	}
	if _, err := seed.Apply(conn, reg, time.Date(2024, 3, 28, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	srv, err := stub.New(conn, reg, nil)
	if err != nil {
		t.Fatalf("failed to build backend: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client, err := listing.NewClient(ts.URL)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	cfg := config.DefaultConfig()
	return NewHandlers(client, reg, cfg, nil), cfg
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func writeCSV(t *testing.T, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("code,libelle,montant\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&b, "C%03d,agence %d,%d\n", i, i, i*100)
	}
	path := filepath.Join(t.TempDir(), "collecte.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}
	return path
}

func TestHandlePreviewFile(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()
	path := writeCSV(t, 120)

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
		wantShown int
	}{
		{
			name:      "default cap",
			args:      map[string]any{"path": path},
			wantShown: 100,
		},
		{
			name:      "explicit cap",
			args:      map[string]any{"path": path, "row_cap": 10},
			wantShown: 10,
		},
		{
			name:      "missing path",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "file does not exist",
			args:      map[string]any{"path": filepath.Join(t.TempDir(), "absent.csv")},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
		{
			name:      "sheet out of range",
			args:      map[string]any{"path": path, "sheet": 3},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "bad argument type",
			args:      map[string]any{"path": path, "row_cap": "many"},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandlePreviewFile(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Fatalf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			output := parseOutput(t, result)
			if got := int(output["shown"].(float64)); got != tt.wantShown {
				t.Errorf("shown = %d, want %d", got, tt.wantShown)
			}
			if got := int(output["row_count"].(float64)); got != 120 {
				t.Errorf("row_count = %d, want 120", got)
			}
		})
	}
}

func TestHandlePreviewFile_Unsupported(t *testing.T) {
	h, _ := testSetup(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := h.HandlePreviewFile(context.Background(), makeRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "UNSUPPORTED_FORMAT")
}

func TestHandleListTabs(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	result, err := h.HandleListTabs(ctx, makeRequest(map[string]any{"role": "aef"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	tabs := output["tabs"].([]any)
	if len(tabs) != 4 {
		t.Fatalf("tab count = %d, want 4", len(tabs))
	}
	first := tabs[0].(map[string]any)
	if first["id"] != "submissions" || first["role"] != "aef" {
		t.Errorf("first tab = %v", first)
	}

	result, _ = h.HandleListTabs(ctx, makeRequest(nil))
	all := parseOutput(t, result)["tabs"].([]any)
	if len(all) != 11 {
		t.Errorf("tab count for every role = %d, want 11", len(all))
	}

	result, _ = h.HandleListTabs(ctx, makeRequest(map[string]any{"role": "admin"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleListPage(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
		wantRows  int
		wantTotal int
	}{
		{
			name:      "first page of users",
			args:      map[string]any{"role": "chef", "tab": "users", "per_page": 2},
			wantRows:  2,
			wantTotal: 5,
		},
		{
			name:      "filtered",
			args:      map[string]any{"role": "chef", "tab": "users", "filters": map[string]any{"actif": "false"}},
			wantRows:  1,
			wantTotal: 1,
		},
		{
			name:      "search",
			args:      map[string]any{"role": "chef", "tab": "submissions", "search": "collecte"},
			wantRows:  3,
			wantTotal: 3,
		},
		{
			name:      "second page of logs",
			args:      map[string]any{"role": "chef", "tab": "logs", "page": 2},
			wantRows:  10,
			wantTotal: 60,
		},
		{
			name:      "unknown filter",
			args:      map[string]any{"role": "chef", "tab": "users", "filters": map[string]any{"age": "3"}},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "unknown tab",
			args:      map[string]any{"role": "uef", "tab": "users"},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleListPage(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			output := parseOutput(t, result)
			rows := output["rows"].([]any)
			if len(rows) != tt.wantRows {
				t.Errorf("rows = %d, want %d", len(rows), tt.wantRows)
			}
			pagination := output["pagination"].(map[string]any)
			if got := int(pagination["total"].(float64)); got != tt.wantTotal {
				t.Errorf("total = %d, want %d", got, tt.wantTotal)
			}
		})
	}
}

func TestHandleListPage_Stats(t *testing.T) {
	h, _ := testSetup(t)

	result, _ := h.HandleListPage(context.Background(), makeRequest(map[string]any{"role": "chef", "tab": "logs"}))
	output := parseOutput(t, result)
	if output["summary"] != "Page 1 of 2 (60 actions)" {
		t.Errorf("summary = %v", output["summary"])
	}
	stats := output["stats"].([]any)
	want := map[string]float64{"Total": 60, "Logins": 15, "Uploads": 15}
	for _, s := range stats {
		stat := s.(map[string]any)
		if w, ok := want[stat["label"].(string)]; ok && stat["value"] != w {
			t.Errorf("%s = %v, want %v", stat["label"], stat["value"], w)
		}
	}
}

func TestHandleListPage_BackendUnavailable(t *testing.T) {
	reg, _ := dashboard.LoadRegistry("", 20)
	ts := httptest.NewServer(nil)
	ts.Close()
	client, _ := listing.NewClient(ts.URL)
	h := NewHandlers(client, reg, config.DefaultConfig(), nil)

	result, err := h.HandleListPage(context.Background(), makeRequest(map[string]any{"role": "uef", "tab": "submissions"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "NETWORK_FAILURE")
}

func TestServerRegistration(t *testing.T) {
	h, cfg := testSetup(t)

	s := NewServer(h.fetcher, h.reg, cfg, nil, "test")
	tools := s.ListTools()
	if len(tools) != len(AllToolNames()) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(AllToolNames()))
	}
	for _, name := range []string{"preview_file", "list_tabs", "list_page"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	h, cfg := testSetup(t)

	cfg.DisabledTools = []string{"list_page", "list_page"}
	s := NewServer(h.fetcher, h.reg, cfg, nil, "test")
	tools := s.ListTools()

	if len(tools) != 2 {
		t.Errorf("registered tool count = %d, want 2", len(tools))
	}
	if _, ok := tools["list_page"]; ok {
		t.Error("disabled tool 'list_page' should not be registered")
	}

	cfg.DisabledTools = AllToolNames()
	if n := len(NewServer(h.fetcher, h.reg, cfg, nil, "test").ListTools()); n != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", n)
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"preview_file", "list_tabs"}, wantLen: 0},
		{name: "one unknown", input: []string{"list_page", "upload_file"}, wantLen: 1},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	err := apperr.NewInternal(fmt.Errorf("open /home/agent/secret.xlsx: permission denied"))
	err.Details = map[string]any{"path": "/home/agent/secret.xlsx"}
	r := errorResult(err)
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(apperr.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], apperr.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("load chef/users: %w", apperr.NewNotFound("tab", "users")))

	errObj := errorObject(t, r)
	if errObj["code"] != string(apperr.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], apperr.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Error("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != "INTERNAL" || errObj["message"] != "an internal error occurred" {
		t.Errorf("error = %v", errObj)
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in error result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("content is not TextContent")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatal("no error object in payload")
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if !result.IsError {
		t.Errorf("expected error result, got success: %s", extractErrorMessage(result))
		return
	}
	code, _ := errorObject(t, result)["code"].(string)
	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
