// Package history stores the outcome of every build cycle in SQLite.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS builds (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	units       INTEGER NOT NULL DEFAULT 0,
	failures    INTEGER NOT NULL DEFAULT 0,
	bundled     INTEGER NOT NULL DEFAULT 0,
	skipped     TEXT NOT NULL DEFAULT '',
	output      TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	write_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS build_failures (
	build_id      INTEGER NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
	path          TEXT NOT NULL,
	relative_path TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL DEFAULT 'unknown',
	line          INTEGER NOT NULL DEFAULT 0,
	col           INTEGER NOT NULL DEFAULT 0,
	message       TEXT NOT NULL DEFAULT '',
	snippet       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_build_failures_build ON build_failures(build_id);
`

// DB wraps a sql.DB holding the build history.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
