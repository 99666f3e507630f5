package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the merged configuration of collecte.
type Config struct {
	// BackendURL is the base URL of the dashboard backend serving the list and action endpoints.
	BackendURL string `json:"backend_url,omitempty"`

	// Role is the dashboard opened by default: "aef", "chef" or "uef".
	Role string `json:"role,omitempty"`

	// PreviewRowCap bounds the rows shown by the upload preview.
	PreviewRowCap int `json:"preview_row_cap,omitempty"`

	// LegacyCSVRowCap bounds the rows shown by the CSV-only preview.
	LegacyCSVRowCap int `json:"legacy_csv_row_cap,omitempty"`

	// DefaultPageSize is used when a tab does not declare its own page size.
	DefaultPageSize int `json:"default_page_size,omitempty"`

	// SearchDebounceMS is the quiet period before a search reloads a list.
	SearchDebounceMS int `json:"search_debounce_ms,omitempty"`

	// RequestTimeoutSeconds bounds each backend request.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// MaxUploadBytes limits files accepted by the web preview.
	MaxUploadBytes int64 `json:"max_upload_bytes,omitempty"`

	// ListsFile optionally replaces the built-in role/tab registry (YAML).
	ListsFile string `json:"lists_file,omitempty"`

	// AcceptPatterns are extra glob patterns (e.g. "*.ods.xlsx") treated as spreadsheets.
	AcceptPatterns []string `json:"accept_patterns,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "console" or "json".
	LogFormat string `json:"log_format,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DBMaxOpenConns limits open connections of the development backend database.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle connections of the development backend database.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BackendURL:            "http://127.0.0.1:8000",
		Role:                  "chef",
		PreviewRowCap:         100,
		LegacyCSVRowCap:       50,
		DefaultPageSize:       20,
		SearchDebounceMS:      500,
		RequestTimeoutSeconds: 30,
		MaxUploadBytes:        20 << 20,
		LogLevel:              "info",
		LogFormat:             "console",
	}
}

// SearchDebounce returns the search quiet period.
func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMS) * time.Millisecond
}

// RequestTimeout returns the per-request backend timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json.
// A missing file yields the defaults.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.collecte.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.collecte) and repo (.collecte) directories.
// Repo config is found by walking upward from startDir to the nearest .collecte/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .collecte/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".collecte", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// DefaultDir returns ~/.collecte, or .collecte in the working directory when HOME is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".collecte"
	}
	return filepath.Join(home, ".collecte")
}

// loadFileRaw returns a zero-valued config (not defaults) if the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge returns base with overlay applied.
// Non-zero overlay scalars win; string lists are concatenated without duplicates.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		BackendURL:            pickString(overlay.BackendURL, base.BackendURL),
		Role:                  pickString(overlay.Role, base.Role),
		PreviewRowCap:         pickInt(overlay.PreviewRowCap, base.PreviewRowCap),
		LegacyCSVRowCap:       pickInt(overlay.LegacyCSVRowCap, base.LegacyCSVRowCap),
		DefaultPageSize:       pickInt(overlay.DefaultPageSize, base.DefaultPageSize),
		SearchDebounceMS:      pickInt(overlay.SearchDebounceMS, base.SearchDebounceMS),
		RequestTimeoutSeconds: pickInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds),
		ListsFile:             pickString(overlay.ListsFile, base.ListsFile),
		LogLevel:              pickString(overlay.LogLevel, base.LogLevel),
		LogFormat:             pickString(overlay.LogFormat, base.LogFormat),
		DBMaxOpenConns:        pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:        pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	result.MaxUploadBytes = overlay.MaxUploadBytes
	if result.MaxUploadBytes == 0 {
		result.MaxUploadBytes = base.MaxUploadBytes
	}

	result.AcceptPatterns = mergeStringSlice(base.AcceptPatterns, overlay.AcceptPatterns)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice concatenates a and b, trimmed, dropping empties and repeats.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
