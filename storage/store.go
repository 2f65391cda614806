// Package storage persists extracted unit references in SQLite so they
// can be queried after indexing.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	// Pure Go SQLite driver
	_ "modernc.org/sqlite"

	"github.com/c360studio/semunit/processor/tags"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path       TEXT PRIMARY KEY,
	hash       TEXT NOT NULL,
	parser     TEXT NOT NULL,
	indexed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS refs (
	path    TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	seq     INTEGER NOT NULL,
	name    TEXT NOT NULL,
	kind    TEXT NOT NULL,
	role    TEXT NOT NULL,
	section TEXT NOT NULL,
	line    INTEGER NOT NULL,
	PRIMARY KEY (path, seq)
);
CREATE INDEX IF NOT EXISTS refs_name ON refs(name);
CREATE INDEX IF NOT EXISTS refs_role ON refs(role);
`

// Store is a SQLite-backed reference store. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open opens (creating if needed) the store at path. Use ":memory:" for a
// private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps in-memory databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Publish replaces everything stored for result.Path with result.
func (s *Store) Publish(ctx context.Context, result *tags.ParseResult) (err error) {
	if s.closed.Load() {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	indexedAt := result.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM refs WHERE path = ?`, result.Path); err != nil {
		return fmt.Errorf("clear refs: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO files (path, hash, parser, indexed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, parser = excluded.parser, indexed_at = excluded.indexed_at`,
		result.Path, result.Hash, result.Parser, indexedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO refs (path, seq, name, kind, role, section, line) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range result.Tags {
		if _, err = stmt.ExecContext(ctx, result.Path, i, t.Name, t.Kind, t.Role, t.Section, t.Line); err != nil {
			return fmt.Errorf("insert ref %q: %w", t.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Retract removes a file and its references. Unknown paths are ignored.
func (s *Store) Retract(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// FileHash returns the content hash recorded for path.
func (s *Store) FileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query file: %w", err)
	}
	return hash, nil
}

// Filter narrows a query. Empty fields match everything.
type Filter struct {
	Name string
	Role string
	Path string
}

// Query returns matching references ordered by path and file order.
func (s *Store) Query(ctx context.Context, f Filter) ([]tags.Tag, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, f.Role)
	}
	if f.Path != "" {
		where = append(where, "path = ?")
		args = append(args, f.Path)
	}

	query := `SELECT name, kind, role, path, section, line FROM refs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY path, seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query refs: %w", err)
	}
	defer rows.Close()

	var out []tags.Tag
	for rows.Next() {
		var t tags.Tag
		if err := rows.Scan(&t.Name, &t.Kind, &t.Role, &t.Path, &t.Section, &t.Line); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refs: %w", err)
	}
	return out, nil
}

// Referrers returns the files that reference unit name, sorted.
func (s *Store) Referrers(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT path FROM refs WHERE name = ? ORDER BY path`, name)
	if err != nil {
		return nil, fmt.Errorf("query referrers: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan referrer: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
