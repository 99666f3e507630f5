// Package db stores the development backend's records as JSON documents
// grouped by collection, in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/croire045-rgb/collecte-plateform/internal/config"
	_ "modernc.org/sqlite"
)

// FileName is the database file created under the base directory.
const FileName = "stub.db"

// migrations[i] upgrades the schema from version i to i+1.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS records (
	  id          TEXT NOT NULL,
	  collection  TEXT NOT NULL,
	  data        TEXT NOT NULL,
	  created_at  INTEGER NOT NULL,
	  PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_collection_created
	ON records(collection, created_at DESC);`,

	`CREATE TABLE IF NOT EXISTS stat_rules (
	  collection  TEXT NOT NULL,
	  name        TEXT NOT NULL,
	  rule        TEXT NOT NULL,
	  position    INTEGER NOT NULL,
	  PRIMARY KEY (collection, name)
	);`,
}

// CurrentSchemaVersion is the user_version of a fully migrated database.
var CurrentSchemaVersion = len(migrations)

// Init opens (creating if needed) baseDir/stub.db in WAL mode and migrates it.
// Tests pass t.TempDir() as baseDir.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create %s: %w", baseDir, err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Pragmas in the DSN apply to every pooled connection.
	path := filepath.Join(baseDir, FileName)
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := checkJournalMode(conn, "wal"); err != nil {
		conn.Close()
		return nil, err
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0600)
	return conn, nil
}

// OpenMemory opens a private in-memory database with the current schema.
// The pool is pinned to one connection so every query sees the same data.
func OpenMemory() (*sql.DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// ConfigurePool applies the db_max_open_conns and db_max_idle_conns settings.
// Zero leaves the driver default.
func ConfigurePool(conn *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

func migrate(conn *sql.DB) error {
	version, err := GetUserVersion(conn)
	if err != nil {
		return err
	}
	for v := version; v < len(migrations); v++ {
		if _, err := conn.Exec(migrations[v]); err != nil {
			return fmt.Errorf("schema migration %d: %w", v+1, err)
		}
		if err := SetUserVersion(conn, v+1); err != nil {
			return err
		}
	}
	return nil
}

func checkJournalMode(conn *sql.DB, want string) error {
	var mode string
	if err := conn.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		return fmt.Errorf("read journal mode: %w", err)
	}
	if mode != want {
		return fmt.Errorf("journal mode is %s, want %s", mode, want)
	}
	return nil
}

// GetUserVersion returns the schema version stored in the user_version pragma.
func GetUserVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion stores version in the user_version pragma.
func SetUserVersion(conn *sql.DB, version int) error {
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("write user_version: %w", err)
	}
	return nil
}
