package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore persists the document as a single row in an embedded SQLite
// database.
//
// The database runs with WAL journaling and synchronous=FULL, so a committed
// Save is on disk when it returns.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS document (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	content TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// OpenSQLite opens or creates the database at path.
//
// A file that is not a usable database is moved aside to <path>.corrupt and
// a fresh database is created in its place.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := openSQLiteConn(path)
	if err == nil {
		return &SQLiteStore{conn: conn, path: path}, nil
	}

	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}

	if qErr := quarantine(path); qErr != nil {
		return nil, fmt.Errorf("%v (and failed to move it aside: %w)", err, qErr)
	}

	conn, err = openSQLiteConn(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{conn: conn, path: path}, nil
}

const sqlitePragmas = "_pragma=journal_mode(wal)&_pragma=synchronous(full)&_pragma=busy_timeout(5000)"

// sqliteDSN builds a file: URI for path. The path is percent-escaped so
// '?', '#' and '%' in file names stay part of the path.
func sqliteDSN(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path), RawQuery: sqlitePragmas}
	return u.String()
}

func openSQLiteConn(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer, one row: a single connection keeps every statement on the
	// same pragma-configured handle.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return conn, nil
}

// quarantine renames an unusable database and its WAL side files.
func quarantine(path string) error {
	if err := os.Rename(path, path+".corrupt"); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load returns the stored content, or "" when no row has been written.
func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var content string
	err := s.conn.QueryRowContext(ctx, `SELECT content FROM document WHERE id = 1`).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if errors.Is(err, sqlite3.CORRUPT) || errors.Is(err, sqlite3.NOTADB) {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load document: %w", err)
	}
	return content, nil
}

// Save replaces the stored content in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, content string) error {
	query := `
	INSERT INTO document (id, content, updated_at) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		updated_at = excluded.updated_at
	`
	if _, err := s.conn.ExecContext(ctx, query, content, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}
