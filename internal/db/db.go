// Package db owns the sqlite connection and schema initialization. It
// does not expose query methods itself; internal/store builds repositories
// on top of the *sqlx.DB it returns.
package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sandboxes (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	profile_name TEXT NOT NULL,
	state TEXT NOT NULL,
	ttl_seconds INTEGER,
	expires_at DATETIME,
	idle_expires_at DATETIME,
	version INTEGER NOT NULL DEFAULT 0,
	last_activity_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	deleted_at DATETIME,
	failure_reason TEXT NOT NULL DEFAULT '',
	cargo_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_sandboxes_owner ON sandboxes(owner_id);
CREATE INDEX IF NOT EXISTS idx_sandboxes_deleted ON sandboxes(deleted_at);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	sandbox_id TEXT NOT NULL,
	profile_name TEXT NOT NULL,
	status TEXT NOT NULL,
	containers_json TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	ready_at DATETIME,
	stopped_at DATETIME,
	failure_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_sandbox ON sessions(sandbox_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS cargos (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	managed_by_sandbox_id TEXT,
	volume_name TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_used_at DATETIME NOT NULL,
	deleted_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_cargos_owner ON cargos(owner_id);
CREATE INDEX IF NOT EXISTS idx_cargos_managed_by ON cargos(managed_by_sandbox_id);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	owner_id TEXT NOT NULL,
	key TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	response_code INTEGER NOT NULL,
	response_body TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	PRIMARY KEY (owner_id, key)
);
`

// Open opens (creating if absent) the sqlite database at path and applies
// the idempotent schema DDL. Full migration tooling is intentionally not
// used here; see DESIGN.md.
func Open(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return db, nil
}
