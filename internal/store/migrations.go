package store

import (
	"database/sql"
	"fmt"

	"cleansynth/internal/logging"
)

// Schema versions:
// v1: runs, history and attempts tables
// v2: model column on runs, source diff columns on attempts
const CurrentSchemaVersion = 2

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_versions (
	version INTEGER NOT NULL,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	dataset TEXT NOT NULL,
	rules_path TEXT NOT NULL,
	rule_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	kind TEXT NOT NULL,
	rule_index INTEGER,
	row_count INTEGER NOT NULL,
	note TEXT NOT NULL,
	payload TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	UNIQUE(run_id, position)
);

CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	rule_index INTEGER NOT NULL,
	attempt INTEGER NOT NULL,
	stage TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_history_run ON history(run_id, position);
CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id, rule_index, attempt);
`

// Migration adds a column that older databases lack.
type Migration struct {
	Version int
	Table   string
	Column  string
	Def     string
}

var migrations = []Migration{
	{Version: 2, Table: "runs", Column: "model", Def: "TEXT NOT NULL DEFAULT ''"},
	{Version: 2, Table: "attempts", Column: "lines_added", Def: "INTEGER NOT NULL DEFAULT 0"},
	{Version: 2, Table: "attempts", Column: "lines_removed", Def: "INTEGER NOT NULL DEFAULT 0"},
	{Version: 2, Table: "attempts", Column: "delta", Def: "TEXT NOT NULL DEFAULT ''"},
}

// RunMigrations creates the base schema and applies column migrations.
// Safe to call on every open.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	if _, err := db.Exec(schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	from := GetSchemaVersion(db)
	applied := 0
	for _, m := range migrations {
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration v%d %s.%s: %w", m.Version, m.Table, m.Column, err)
		}
		applied++
		logging.StoreDebug("Added column %s.%s", m.Table, m.Column)
	}

	if from < CurrentSchemaVersion {
		if _, err := db.Exec(
			"INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)",
			CurrentSchemaVersion, formatTime(nowUTC()),
		); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		logging.Store("Schema migrated v%d -> v%d (%d columns added)", from, CurrentSchemaVersion, applied)
	}
	return nil
}

// GetSchemaVersion returns the recorded schema version, or 0 for a fresh
// database.
func GetSchemaVersion(db *sql.DB) int {
	if !tableExists(db, "schema_versions") {
		return 0
	}
	var version sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_versions").Scan(&version); err != nil {
		logging.StoreDebug("Schema version query failed: %v", err)
		return 0
	}
	return int(version.Int64)
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		logging.StoreDebug("Table existence check failed for %s: %v", table, err)
		return false
	}
	return count > 0
}
