// Package index provides the SQLite-backed Index Store: postings, stored
// fields, tag facets, usage counters and the tracked file hashes, all
// committed together as one generation.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/xq/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO meta (key, value) VALUES ('generation', 0);

CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	path            TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	title           TEXT NOT NULL,
	subtitle        TEXT NOT NULL DEFAULT '',
	authors         TEXT NOT NULL DEFAULT '[]',
	tags            TEXT NOT NULL DEFAULT '[]',
	date_unix       INTEGER,
	body            TEXT NOT NULL DEFAULT '',
	last_indexed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS postings (
	term      TEXT NOT NULL,
	doc_id    TEXT NOT NULL,
	field     TEXT NOT NULL,
	tf        INTEGER NOT NULL,
	positions TEXT NOT NULL,
	PRIMARY KEY (term, doc_id, field)
);
CREATE INDEX IF NOT EXISTS idx_postings_doc ON postings(doc_id);

CREATE TABLE IF NOT EXISTS doc_tags (
	tag    TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	PRIMARY KEY (tag, doc_id)
);
CREATE INDEX IF NOT EXISTS idx_doc_tags_doc ON doc_tags(doc_id);

CREATE TABLE IF NOT EXISTS usage (
	doc_id       TEXT PRIMARY KEY,
	access_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tracked_files (
	path         TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	doc_id       TEXT NOT NULL,
	orphaned     INTEGER NOT NULL DEFAULT 0
);
`

// DB is the SQLite implementation of Store.
type DB struct {
	conn *sql.DB

	// mu serializes commits issued from this process.
	mu  sync.Mutex
	now func() time.Time

	// failAt, when set, is consulted at each commit stage and aborts the
	// transaction if it returns an error.
	failAt func(stage string) error
}

// Open opens (or creates) the index database at path. The WAL journal keeps
// readers on the last committed generation while a commit is in flight, and
// rolls back any transaction interrupted by a crash on the next open.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if err := checkIntegrity(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, &apperr.CorruptionError{Op: "apply schema", Err: err}
	}
	return &DB{conn: conn, now: time.Now}, nil
}

func checkIntegrity(conn *sql.DB) error {
	var result string
	if err := conn.QueryRow(`PRAGMA quick_check`).Scan(&result); err != nil {
		return &apperr.CorruptionError{Op: "open", Err: err}
	}
	if result != "ok" {
		return &apperr.CorruptionError{Op: "open", Err: fmt.Errorf("integrity check: %s", result)}
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func generation(ctx context.Context, q querier) (uint64, error) {
	var gen uint64
	if err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'generation'`).Scan(&gen); err != nil {
		return 0, fmt.Errorf("index: read generation: %w", err)
	}
	return gen, nil
}
