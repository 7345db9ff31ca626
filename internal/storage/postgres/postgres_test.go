package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopcart/internal/storage"
	"github.com/utafrali/shopcart/pkg/database"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	var _ database.DBTX = mock
	t.Cleanup(mock.Close)
	return New(mock), mock
}

// ---------------------------------------------------------------------------
// Read
// ---------------------------------------------------------------------------

func TestStore_Read_Success(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectQuery("SELECT value FROM cart_kv WHERE key").
		WithArgs("__cart__").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(`{"a":{"id":"a"}}`))

	got, err := s.Read(context.Background(), "__cart__")
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"id":"a"}}`, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Read_Absent(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectQuery("SELECT value FROM cart_kv WHERE key").
		WithArgs("__cart__").
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	_, err := s.Read(context.Background(), "__cart__")
	assert.ErrorIs(t, err, storage.ErrAbsent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Read_ConnectionRefused(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectQuery("SELECT value FROM cart_kv WHERE key").
		WithArgs("__cart__").
		WillReturnError(errors.New("dial tcp 127.0.0.1:5432: connection refused"))

	_, err := s.Read(context.Background(), "__cart__")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Write
// ---------------------------------------------------------------------------

func TestStore_Write_Success(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectExec("INSERT INTO cart_kv").
		WithArgs("__cart__", "{}").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Write(context.Background(), "__cart__", "{}"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Write_DiskFull(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectExec("INSERT INTO cart_kv").
		WithArgs("__cart__", "{}").
		WillReturnError(&pgconn.PgError{Code: "53100", Message: "could not extend file"})

	err := s.Write(context.Background(), "__cart__", "{}")
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Write_ValueTooLarge(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectExec("INSERT INTO cart_kv").
		WithArgs("__cart__", "{}").
		WillReturnError(&pgconn.PgError{Code: "54000", Message: "total size of jsonb array elements exceeds the maximum"})

	err := s.Write(context.Background(), "__cart__", "{}")
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
}

func TestStore_Write_OtherServerError(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectExec("INSERT INTO cart_kv").
		WithArgs("__cart__", "{}").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "cart_kv" does not exist`})

	err := s.Write(context.Background(), "__cart__", "{}")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.NotErrorIs(t, err, storage.ErrUnavailable)
}

// ---------------------------------------------------------------------------
// Delete / schema / ping
// ---------------------------------------------------------------------------

func TestStore_Delete(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectExec("DELETE FROM cart_kv WHERE key").
		WithArgs("__cart__").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.Delete(context.Background(), "__cart__"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnsureSchema(t *testing.T) {
	s, mock := setupStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cart_kv").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s := New(mock)

	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection reset by peer"))
	assert.ErrorIs(t, s.Ping(context.Background()), storage.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
