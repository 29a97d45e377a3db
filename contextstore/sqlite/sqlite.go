// Package sqlite persists the session context store in an SQLite database so
// runs can be resumed and inspected after the process exits. It implements
// the same append-only versioning contract as the in-memory store.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/taskmesh/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS context_entries (
	id              TEXT    NOT NULL,
	version         INTEGER NOT NULL,
	content         TEXT    NOT NULL,
	producer_task_id TEXT   NOT NULL,
	created_at      TEXT    NOT NULL,
	PRIMARY KEY (id, version)
);
CREATE INDEX IF NOT EXISTS idx_context_entries_id ON context_entries(id);
`

// Store is a ContextStore backed by an SQLite file. Versioning is enforced
// by the (id, version) primary key; Put runs in a transaction so concurrent
// writers cannot mint the same version twice.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the store at path, creating parent directories as
// needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Put appends a new version for id and returns its version number.
func (s *Store) Put(id, content, producerTaskID string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("sqlite: empty context id")
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) + 1 FROM context_entries WHERE id = ?`, id,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("next version for %q: %w", id, err)
	}

	_, err = tx.Exec(
		`INSERT INTO context_entries (id, version, content, producer_task_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, version, content, producerTaskID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert %q v%d: %w", id, version, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit put: %w", err)
	}
	return version, nil
}

// Get returns the latest version of id or core.ErrContextNotFound.
func (s *Store) Get(id string) (core.ContextEntry, error) {
	row := s.conn.QueryRow(
		`SELECT id, version, content, producer_task_id FROM context_entries
		 WHERE id = ? ORDER BY version DESC LIMIT 1`, id,
	)
	var e core.ContextEntry
	err := row.Scan(&e.ID, &e.Version, &e.Content, &e.ProducerTaskID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ContextEntry{}, fmt.Errorf("sqlite: %q: %w", id, core.ErrContextNotFound)
	}
	if err != nil {
		return core.ContextEntry{}, fmt.Errorf("get %q: %w", id, err)
	}
	return e, nil
}

// History returns every version of id in ascending version order.
func (s *Store) History(id string) ([]core.ContextEntry, error) {
	rows, err := s.conn.Query(
		`SELECT id, version, content, producer_task_id FROM context_entries
		 WHERE id = ? ORDER BY version ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", id, err)
	}
	defer rows.Close()

	var out []core.ContextEntry
	for rows.Next() {
		var e core.ContextEntry
		if err := rows.Scan(&e.ID, &e.Version, &e.Content, &e.ProducerTaskID); err != nil {
			return nil, fmt.Errorf("scan history %q: %w", id, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history %q: %w", id, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sqlite: %q: %w", id, core.ErrContextNotFound)
	}
	return out, nil
}

// Snapshot returns an immutable latest-by-id view of the store.
func (s *Store) Snapshot() core.Snapshot {
	latest := make(map[string]core.ContextEntry)

	rows, err := s.conn.Query(
		`SELECT c.id, c.version, c.content, c.producer_task_id
		 FROM context_entries c
		 JOIN (SELECT id, MAX(version) AS version FROM context_entries GROUP BY id) m
		   ON c.id = m.id AND c.version = m.version`,
	)
	if err != nil {
		return core.NewSnapshot(latest)
	}
	defer rows.Close()

	for rows.Next() {
		var e core.ContextEntry
		if err := rows.Scan(&e.ID, &e.Version, &e.Content, &e.ProducerTaskID); err != nil {
			continue
		}
		latest[e.ID] = e
	}
	return core.NewSnapshot(latest)
}

// Resolve returns the latest entries for ids preserving request order,
// failing with *core.MissingContextError naming every absent id.
func (s *Store) Resolve(ids []string) ([]core.ContextEntry, error) {
	return s.Snapshot().Resolve(ids)
}

// Len returns the number of distinct context ids.
func (s *Store) Len() int {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(DISTINCT id) FROM context_entries`).Scan(&n); err != nil {
		return 0
	}
	return n
}
