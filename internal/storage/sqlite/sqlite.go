// Package sqlite provides a SQLite-backed storage adapter holding one row per key.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/utafrali/shopcart/internal/storage"
	"github.com/utafrali/shopcart/pkg/database"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

const (
	system     = "sqlite"
	readQuery  = `SELECT value FROM kv WHERE key = ?`
	writeQuery = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteQuery = `DELETE FROM kv WHERE key = ?`
)

// Store persists key-value text in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite database at path and ensures the kv table exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Read returns the value stored under key.
func (s *Store) Read(ctx context.Context, key string) (value string, err error) {
	ctx, end := database.TraceQuery(ctx, system, "read", readQuery)
	defer func() { end(storage.Failure(err)) }()

	err = s.sqlDB.QueryRowContext(ctx, readQuery, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrAbsent
		}
		return "", fmt.Errorf("sqlite read %s: %w", key, classify(err))
	}
	return value, nil
}

// Write upserts value under key.
func (s *Store) Write(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "write", writeQuery)
	defer func() { end(err) }()

	if _, err = s.sqlDB.ExecContext(ctx, writeQuery, key, value, s.now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite write %s: %w", key, classify(err))
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "delete", deleteQuery)
	defer func() { end(err) }()

	if _, err = s.sqlDB.ExecContext(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, classify(err))
	}
	return nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping: %w", classify(err))
	}
	return nil
}

// classify maps SQLite result codes onto the storage failure modes.
func classify(err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_FULL:
			return fmt.Errorf("%w: %v", storage.ErrQuotaExceeded, err)
		case sqlite3lib.SQLITE_CANTOPEN, sqlite3lib.SQLITE_READONLY, sqlite3lib.SQLITE_IOERR, sqlite3lib.SQLITE_BUSY:
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return err
}

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Pinger  = (*Store)(nil)
)
