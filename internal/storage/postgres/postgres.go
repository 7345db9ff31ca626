// Package postgres implements storage.Adapter on a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/shopcart/internal/storage"
	"github.com/utafrali/shopcart/pkg/database"
)

// Schema creates the key-value table used by Store.
const Schema = `CREATE TABLE IF NOT EXISTS cart_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	system     = "postgresql"
	readQuery  = `SELECT value FROM cart_kv WHERE key = $1`
	writeQuery = `INSERT INTO cart_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteQuery = `DELETE FROM cart_kv WHERE key = $1`
)

// Store implements storage.Adapter using PostgreSQL.
type Store struct {
	db database.DBTX
}

// New creates a PostgreSQL-backed adapter.
func New(db database.DBTX) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the cart_kv table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "ensure_schema", Schema)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create cart_kv table: %w", classify(err))
	}
	return nil
}

// Read returns the value stored under key.
func (s *Store) Read(ctx context.Context, key string) (value string, err error) {
	ctx, end := database.TraceQuery(ctx, system, "read", readQuery)
	defer func() { end(storage.Failure(err)) }()

	err = s.db.QueryRow(ctx, readQuery, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", storage.ErrAbsent
		}
		return "", fmt.Errorf("postgres read %s: %w", key, classify(err))
	}
	return value, nil
}

// Write upserts value under key.
func (s *Store) Write(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "write", writeQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, writeQuery, key, value); err != nil {
		return fmt.Errorf("postgres write %s: %w", key, classify(err))
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "delete", deleteQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, classify(err))
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", classify(err))
	}
	return nil
}

// classify maps PostgreSQL error classes onto the storage failure modes:
// class 53 (insufficient resources) and 54000 (program limit, oversized
// value) are quota failures, connection problems are unavailability.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) == 5 && (pgErr.Code[:2] == "53" || pgErr.Code == "54000") {
			return fmt.Errorf("%w: %v", storage.ErrQuotaExceeded, err)
		}
		return err
	}
	if database.IsConnectionError(err) {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return err
}

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Pinger  = (*Store)(nil)
)
