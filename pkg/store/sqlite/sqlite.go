// Package sqlite provides a SQLite-backed store driver.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/memd/pkg/store/sqldriver"
)

// Driver implements store.Store using SQLite.
type Driver struct {
	*sqldriver.Driver
}

// schema is applied on open. Changes must stay append-only.
const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id              TEXT PRIMARY KEY,
	scope_key       TEXT NOT NULL,
	scope_json      TEXT NOT NULL,
	fact            TEXT NOT NULL,
	topic           TEXT NOT NULL DEFAULT '',
	confidence      REAL NOT NULL,
	embedding_ref   TEXT NOT NULL DEFAULT '',
	revision_count  INTEGER NOT NULL,
	superseded      BOOLEAN NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	expires_at      TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(scope_key);

CREATE TABLE IF NOT EXISTS memory_revisions (
	memory_id        TEXT NOT NULL,
	revision_number  INTEGER NOT NULL,
	action           TEXT NOT NULL,
	fact             TEXT NOT NULL,
	confidence       REAL NOT NULL,
	source_job_id    TEXT NOT NULL DEFAULT '',
	candidate_ids    TEXT NOT NULL DEFAULT '[]',
	created_at       TIMESTAMP NOT NULL,
	PRIMARY KEY (memory_id, revision_number)
);

CREATE TABLE IF NOT EXISTS jobs (
	id                   TEXT PRIMARY KEY,
	scope_key            TEXT NOT NULL,
	status               TEXT NOT NULL,
	attempt_count        INTEGER NOT NULL DEFAULT 0,
	memories_created     INTEGER NOT NULL DEFAULT 0,
	memories_updated     INTEGER NOT NULL DEFAULT 0,
	memories_superseded  INTEGER NOT NULL DEFAULT 0,
	error                TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMP NOT NULL
);
`

// NewDriver creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{
		Driver: &sqldriver.Driver{
			DB:      db,
			Dialect: sqldriver.SQLite,
		},
	}, nil
}
