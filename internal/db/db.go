package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/tempo/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DB wraps the sql handle and implements snapshot.Store.
type DB struct {
	sql *sql.DB
}

// Init initializes the SQLite database at baseDir/tempo.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tempo.
func Init(baseDir string) (*DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "tempo.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{sql: sqlDB}

	// Verify WAL mode is active
	if err := db.verifyWALMode(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// Close closes the underlying database handle.
func (db *DB) Close() error {
	return db.sql.Close()
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func (db *DB) ConfigurePool(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.sql.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.sql.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func (db *DB) migrate() error {
	version, err := db.UserVersion()
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
		  id                TEXT PRIMARY KEY,
		  project           TEXT NOT NULL,
		  summary           TEXT,
		  tags_json         TEXT,
		  created_at        INTEGER NOT NULL,
		  action_type       TEXT,
		  rationale         TEXT,
		  caused_by         TEXT,
		  tier              TEXT NOT NULL DEFAULT 'ARCHIVED',
		  last_accessed     INTEGER,
		  access_count      INTEGER NOT NULL DEFAULT 0,
		  prediction_score  REAL,
		  last_predicted    INTEGER,
		  reasons_json      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_project_created
		ON snapshots(project, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_snapshots_caused_by
		ON snapshots(caused_by)
		WHERE caused_by IS NOT NULL;

		CREATE INDEX IF NOT EXISTS idx_snapshots_last_accessed
		ON snapshots(project, last_accessed);

		CREATE INDEX IF NOT EXISTS idx_snapshots_score
		ON snapshots(project, prediction_score DESC)
		WHERE prediction_score IS NOT NULL;
		`
		if _, err := db.sql.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := db.SetUserVersion(1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func (db *DB) verifyWALMode() error {
	var journalMode string
	if err := db.sql.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// UserVersion returns the current schema version (user_version pragma).
func (db *DB) UserVersion() (int, error) {
	var version int
	if err := db.sql.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func (db *DB) SetUserVersion(version int) error {
	_, err := db.sql.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
