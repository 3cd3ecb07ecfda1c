// Package db provides SQLite storage for mailtriage.
//
// The only thing persisted is the mapping from label names to mailbox label
// ids, so repeated runs skip the label listing round trip. Classification
// results are never stored.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection for mailtriage operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) a mailtriage database at the given path.
// ":memory:" opens a private in-memory database.
func Open(dbPath string) (*DB, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each new connection would get its own empty database.
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Now returns the current time as an ISO 8601 string.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// DefaultPath returns ~/.cache/mailtriage/labels.db.
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", ".mailtriage", "labels.db")
	}
	return filepath.Join(dir, "mailtriage", "labels.db")
}

// --- Label operations ---

// LabelID returns the cached id for a label name, compared case-insensitively.
// The second return value is false when nothing is cached.
func (d *DB) LabelID(backend, account, name string) (string, bool, error) {
	var id string
	err := d.conn.QueryRow(
		"SELECT label_id FROM labels WHERE backend = ? AND account = ? AND name = ?",
		backend, account, strings.ToLower(name),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// PutLabel caches a label id, replacing any previous entry.
func (d *DB) PutLabel(backend, account, name, id string) error {
	_, err := d.conn.Exec(`
		INSERT INTO labels (backend, account, name, label_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(backend, account, name) DO UPDATE SET label_id = excluded.label_id`,
		backend, account, strings.ToLower(name), id, Now(),
	)
	return err
}

// DeleteLabel drops a cached label, used when the mailbox no longer knows the id.
func (d *DB) DeleteLabel(backend, account, name string) error {
	_, err := d.conn.Exec(
		"DELETE FROM labels WHERE backend = ? AND account = ? AND name = ?",
		backend, account, strings.ToLower(name),
	)
	return err
}

// LabelCount returns the number of cached labels for an account.
func (d *DB) LabelCount(backend, account string) int {
	var n int
	d.conn.QueryRow("SELECT COUNT(*) FROM labels WHERE backend = ? AND account = ?", backend, account).Scan(&n)
	return n
}
