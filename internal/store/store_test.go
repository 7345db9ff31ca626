package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/shopcart/internal/domain"
	"github.com/utafrali/shopcart/internal/storage"
	"github.com/utafrali/shopcart/internal/storage/memory"
	apperrors "github.com/utafrali/shopcart/pkg/errors"
	"github.com/utafrali/shopcart/pkg/logger"
)

// ============================================================================
// Mock Adapter
// ============================================================================

type mockAdapter struct {
	mock.Mock
}

func (m *mockAdapter) Read(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockAdapter) Write(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *mockAdapter) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// ============================================================================
// Test helpers
// ============================================================================

func product(id, price string) domain.ProductDescriptor {
	return domain.ProductDescriptor{
		ID:       id,
		Title:    "Product " + id,
		ImageRef: "img/" + id + ".png",
		Price:    decimal.RequireFromString(price),
	}
}

func newMemoryStore(t *testing.T, opts ...Option) (*Store, *memory.Store) {
	t.Helper()
	adapter := memory.New(0)
	s := New(adapter, logger.Discard(), opts...)
	require.NoError(t, s.Load(context.Background()))
	return s, adapter
}

func persisted(t *testing.T, adapter storage.Adapter, key string) string {
	t.Helper()
	blob, err := adapter.Read(context.Background(), key)
	require.NoError(t, err)
	return blob
}

// ============================================================================
// Scenarios
// ============================================================================

func TestStore_FreshStoreIsEmpty(t *testing.T) {
	s, _ := newMemoryStore(t)

	assert.Empty(t, s.AllLines())
	assert.True(t, s.Total().IsZero())
}

func TestStore_IncrementTwice(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)

	_, err := s.Increment(ctx, product("A", "10"))
	require.NoError(t, err)
	line, err := s.Increment(ctx, domain.ProductDescriptor{ID: "A"})
	require.NoError(t, err)

	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, "20", s.Total().String())
}

func TestStore_DecrementAfterIncrements(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("A", "10"))
	_, _ = s.Increment(ctx, product("A", "10"))

	line, err := s.Decrement(ctx, domain.ProductDescriptor{ID: "A"})
	require.NoError(t, err)

	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "10", s.Total().String())
}

func TestStore_RemoveLineEmptiesCart(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("A", "10"))

	require.NoError(t, s.RemoveLine(ctx, "A"))

	assert.Empty(t, s.AllLines())
	assert.True(t, s.Total().IsZero())
}

func TestStore_ReloadFromSameKey(t *testing.T) {
	ctx := context.Background()
	s, adapter := newMemoryStore(t)
	_, err := s.Increment(ctx, product("B", "5"))
	require.NoError(t, err)

	fresh := New(adapter, logger.Discard())
	require.NoError(t, fresh.Load(ctx))

	line, ok := fresh.LineFor("B")
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)
}

func TestStore_IncrementAtMaxQuantityIsRejected(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New(0)
	blob := `{"x":{"id":"x","title":"X","img":"x.png","price":"1","amount":` + strconv.Itoa(math.MaxInt) + `}}`
	require.NoError(t, adapter.Write(ctx, DefaultKey, blob))
	s := New(adapter, logger.Discard())
	require.NoError(t, s.Load(ctx))

	line, err := s.Increment(ctx, product("x", "1"))

	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, math.MaxInt, line.Quantity)
	stored, ok := s.LineFor("x")
	require.True(t, ok)
	assert.Equal(t, math.MaxInt, stored.Quantity)
	assert.Equal(t, blob, persisted(t, adapter, DefaultKey))

	reloaded := New(adapter, logger.Discard())
	require.NoError(t, reloaded.Load(ctx))
	assert.Len(t, reloaded.AllLines(), 1)
}

func TestStore_DecrementNeverAdded(t *testing.T) {
	ctx := context.Background()
	s, adapter := newMemoryStore(t)

	line, err := s.Decrement(ctx, product("C", "3"))
	require.NoError(t, err)

	assert.Equal(t, "C", line.ProductID)
	assert.Equal(t, 0, line.Quantity)
	_, ok := s.LineFor("C")
	assert.False(t, ok)
	assert.Equal(t, "{}", persisted(t, adapter, DefaultKey), "decrement still persists")
}

// ============================================================================
// Properties
// ============================================================================

func TestStore_QuantityNeverNegative(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	ops := "+-+--++---+-+--"

	for i, op := range ops {
		var err error
		if op == '+' {
			_, err = s.Increment(ctx, product("p", "1"))
		} else {
			_, err = s.Decrement(ctx, product("p", "1"))
		}
		require.NoError(t, err, "step %d", i)
		for _, l := range s.AllLines() {
			assert.GreaterOrEqual(t, l.Quantity, 0, "step %d", i)
		}
	}
}

func TestStore_IncrementDecrementInverse(t *testing.T) {
	ctx := context.Background()
	for start := 1; start <= 4; start++ {
		t.Run(fmt.Sprintf("from %d", start), func(t *testing.T) {
			s, _ := newMemoryStore(t)
			for i := 0; i < start; i++ {
				_, _ = s.Increment(ctx, product("p", "2"))
			}

			_, err := s.Increment(ctx, product("p", "2"))
			require.NoError(t, err)
			line, err := s.Decrement(ctx, product("p", "2"))
			require.NoError(t, err)

			assert.Equal(t, start, line.Quantity)
		})
	}
}

func TestStore_DecrementAtFloorKeepsZeroLine(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("p", "2"))
	_, _ = s.Decrement(ctx, product("p", "2"))

	line, err := s.Decrement(ctx, product("p", "2"))
	require.NoError(t, err)
	assert.Equal(t, 0, line.Quantity)

	kept, ok := s.LineFor("p")
	require.True(t, ok, "a zero-quantity line stays in the cart")
	assert.Equal(t, 0, kept.Quantity)
}

func TestStore_TotalMatchesLines(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "1.10"))
	_, _ = s.Increment(ctx, product("b", "0.35"))
	_, _ = s.Increment(ctx, product("b", "0.35"))
	_, _ = s.Increment(ctx, product("c", "7"))
	_, _ = s.Decrement(ctx, product("c", "7"))

	want := decimal.Zero
	for _, l := range s.AllLines() {
		want = want.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, s.Total().Equal(want))
	assert.Equal(t, "1.8", s.Total().String())
}

func TestStore_RoundTripPreservesOrderAndQuantities(t *testing.T) {
	ctx := context.Background()
	s, adapter := newMemoryStore(t)
	for _, id := range []string{"9", "1", "5", "3"} {
		_, _ = s.Increment(ctx, product(id, "1.5"))
	}
	_, _ = s.Increment(ctx, product("1", "1.5"))
	_, _ = s.Decrement(ctx, product("3", "1.5"))

	fresh := New(adapter, logger.Discard())
	require.NoError(t, fresh.Load(ctx))

	assertSameLines(t, s.AllLines(), fresh.AllLines())
}

func TestStore_RemoveLineIdempotent(t *testing.T) {
	ctx := context.Background()
	s, adapter := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "1"))
	_, _ = s.Increment(ctx, product("b", "1"))

	require.NoError(t, s.RemoveLine(ctx, "a"))
	once := persisted(t, adapter, DefaultKey)
	require.NoError(t, s.RemoveLine(ctx, "a"))
	require.NoError(t, s.RemoveLine(ctx, "never-there"))

	assert.Equal(t, once, persisted(t, adapter, DefaultKey))
	require.Len(t, s.AllLines(), 1)
	assert.Equal(t, "b", s.AllLines()[0].ProductID)
}

func TestStore_ClearFromAnyState(t *testing.T) {
	ctx := context.Background()
	s, adapter := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "1"))
	_, _ = s.Increment(ctx, product("b", "2"))

	require.NoError(t, s.Clear(ctx))

	assert.Empty(t, s.AllLines())
	assert.True(t, s.Total().IsZero())
	assert.Equal(t, "{}", persisted(t, adapter, DefaultKey))

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.AllLines())
}

// ============================================================================
// Descriptor resolution
// ============================================================================

func TestStore_StoredFieldsWinOverDescriptor(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "10"))

	changed := domain.ProductDescriptor{ID: "a", Title: "Renamed", ImageRef: "other.png", Price: decimal.NewFromInt(99)}
	line, err := s.Increment(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, "Product a", line.Title)
	assert.Equal(t, "img/a.png", line.ImageRef)
	assert.Equal(t, "10", line.UnitPrice.String())
	assert.Equal(t, 2, line.Quantity)
}

func TestStore_ZeroQuantityLineIsNotReseeded(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "10"))
	_, _ = s.Decrement(ctx, product("a", "10"))

	line, err := s.Increment(ctx, domain.ProductDescriptor{ID: "a", Title: "New", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)

	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "Product a", line.Title)
	assert.Equal(t, "10", line.UnitPrice.String())
}

func TestStore_InvalidDescriptor(t *testing.T) {
	ctx := context.Background()
	s, adapter := newMemoryStore(t)

	_, err := s.Increment(ctx, domain.ProductDescriptor{ID: ""})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.Increment(ctx, product("neg", "-1"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.Decrement(ctx, domain.ProductDescriptor{ID: " "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Empty(t, s.AllLines())
	_, err = adapter.Read(ctx, DefaultKey)
	assert.ErrorIs(t, err, storage.ErrAbsent, "rejected descriptors must not touch storage")
}

func TestStore_AllLinesIsSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "1"))

	snap := s.AllLines()
	_, _ = s.Increment(ctx, product("a", "1"))
	_, _ = s.Increment(ctx, product("b", "1"))

	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].Quantity)
}

// ============================================================================
// Load recovery
// ============================================================================

func TestStore_Load_MalformedBlobResets(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New(0)
	require.NoError(t, adapter.Write(ctx, DefaultKey, "{{not-valid-json"))
	before := testutil.ToFloat64(loadRecoveriesTotal.WithLabelValues("decode"))

	s := New(adapter, logger.Discard())
	err := s.Load(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeserialization)
	var decErr *DeserializationError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, DefaultKey, decErr.Key)
	assert.Empty(t, s.AllLines())
	assert.Equal(t, before+1, testutil.ToFloat64(loadRecoveriesTotal.WithLabelValues("decode")))

	// The store is fully usable afterwards and overwrites the bad blob.
	_, err = s.Increment(ctx, product("a", "1"))
	require.NoError(t, err)
	fresh := New(adapter, logger.Discard())
	require.NoError(t, fresh.Load(ctx))
	assert.Len(t, fresh.AllLines(), 1)
}

func TestStore_Load_ReplacesEarlierState(t *testing.T) {
	ctx := context.Background()
	s, adapter := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "1"))
	require.NoError(t, adapter.Write(ctx, DefaultKey, "not json"))

	require.Error(t, s.Load(ctx))
	assert.Empty(t, s.AllLines())
}

func TestStore_Load_ReadFailureResets(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New(0)
	adapter.SetDisabled(true)

	s := New(adapter, logger.Discard())
	err := s.Load(ctx)

	assert.ErrorIs(t, err, ErrPersistenceRead)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrDeserialization)
	assert.Empty(t, s.AllLines())
}

func TestStore_Load_CustomKey(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New(0)
	require.NoError(t, adapter.Write(ctx, "other", `{"x":{"id":"x","title":"X","img":"","price":3,"amount":2}}`))

	s := New(adapter, logger.Discard(), WithKey("other"))
	require.NoError(t, s.Load(ctx))

	assert.Equal(t, "other", s.Key())
	assert.Equal(t, "6", s.Total().String())
}

// ============================================================================
// Write failures
// ============================================================================

func TestStore_WriteFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	adapter := new(mockAdapter)
	adapter.On("Read", mock.Anything, DefaultKey).Return("", storage.ErrAbsent)
	adapter.On("Write", mock.Anything, DefaultKey, mock.Anything).
		Return(fmt.Errorf("local storage: %w", storage.ErrQuotaExceeded))

	s := New(adapter, logger.Discard())
	require.NoError(t, s.Load(ctx))
	before := testutil.ToFloat64(persistFailuresTotal.WithLabelValues(string(OpIncrement)))

	line, err := s.Increment(ctx, product("a", "4"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceWrite)
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	var writeErr *PersistenceWriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, OpIncrement, writeErr.Op)

	assert.Equal(t, 1, line.Quantity)
	got, ok := s.LineFor("a")
	require.True(t, ok, "in-memory mutation is not rolled back")
	assert.Equal(t, 1, got.Quantity)
	assert.Equal(t, before+1, testutil.ToFloat64(persistFailuresTotal.WithLabelValues(string(OpIncrement))))
	adapter.AssertExpectations(t)
}

func TestStore_WriteFailureOnEveryMutation(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New(0)
	s := New(adapter, logger.Discard())
	require.NoError(t, s.Load(ctx))
	_, _ = s.Increment(ctx, product("a", "1"))
	adapter.SetDisabled(true)

	_, err := s.Increment(ctx, product("a", "1"))
	assert.ErrorIs(t, err, ErrPersistenceWrite)
	_, err = s.Decrement(ctx, product("a", "1"))
	assert.ErrorIs(t, err, ErrPersistenceWrite)
	_, err = s.Decrement(ctx, product("absent", "1"))
	assert.ErrorIs(t, err, ErrPersistenceWrite)
	assert.ErrorIs(t, s.RemoveLine(ctx, "a"), ErrPersistenceWrite)
	assert.ErrorIs(t, s.Clear(ctx), ErrPersistenceWrite)
	_, err = s.Checkout(ctx)
	assert.ErrorIs(t, err, ErrPersistenceWrite)
}

func TestStore_QuotaExceededThenRecovered(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New(120)
	s := New(adapter, logger.Discard())
	require.NoError(t, s.Load(ctx))

	_, err := s.Increment(ctx, product("a", "1"))
	require.NoError(t, err)
	_, err = s.Increment(ctx, product("b", "1"))
	require.ErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.Len(t, s.AllLines(), 2)

	require.NoError(t, s.RemoveLine(ctx, "b"), "shrinking the cart fits the quota again")
}

// ============================================================================
// Checkout
// ============================================================================

func TestStore_Checkout(t *testing.T) {
	ctx := context.Background()
	s, adapter := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "2.50"))
	_, _ = s.Increment(ctx, product("a", "2.50"))
	_, _ = s.Increment(ctx, product("b", "1"))

	snap, err := s.Checkout(ctx)
	require.NoError(t, err)

	assert.Equal(t, "6", snap.Total.String())
	assert.Equal(t, 3, snap.ItemCount)
	assert.Len(t, snap.Lines, 2)
	assert.Empty(t, s.AllLines())
	_, err = adapter.Read(ctx, DefaultKey)
	assert.ErrorIs(t, err, storage.ErrAbsent)
}

func TestStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := newMemoryStore(t)
	_, _ = s.Increment(ctx, product("a", "3"))
	_, _ = s.Increment(ctx, product("b", "4"))
	_, _ = s.Increment(ctx, product("b", "4"))

	snap := s.Snapshot()
	assert.Equal(t, "11", snap.Total.String())
	assert.Equal(t, 3, snap.ItemCount)
	require.Len(t, snap.Lines, 2)
}

// ============================================================================
// Observers
// ============================================================================

func TestStore_ObserversSeeEveryChange(t *testing.T) {
	ctx := context.Background()
	var changes []Change
	obs := ObserverFunc(func(_ context.Context, c Change) error {
		changes = append(changes, c)
		return nil
	})
	s, _ := newMemoryStore(t, WithObserver(obs))

	_, _ = s.Increment(ctx, product("a", "2"))
	_, _ = s.Decrement(ctx, product("a", "2"))
	_, _ = s.Decrement(ctx, product("ghost", "2"))
	_ = s.RemoveLine(ctx, "a")
	_ = s.RemoveLine(ctx, "a")
	_ = s.Clear(ctx)

	require.Len(t, changes, 4)
	assert.Equal(t, OpIncrement, changes[0].Op)
	require.NotNil(t, changes[0].Line)
	assert.Equal(t, 1, changes[0].Line.Quantity)
	assert.Equal(t, "2", changes[0].Total.String())
	assert.True(t, changes[0].Durable)

	assert.Equal(t, OpDecrement, changes[1].Op)
	assert.True(t, changes[1].Total.IsZero())

	assert.Equal(t, OpRemove, changes[2].Op)
	assert.Equal(t, "a", changes[2].ProductID)
	assert.Nil(t, changes[2].Line)
	assert.Empty(t, changes[2].Lines)

	assert.Equal(t, OpClear, changes[3].Op)
}

func TestStore_ObserverFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	obs := ObserverFunc(func(context.Context, Change) error { return errors.New("broker down") })
	s, _ := newMemoryStore(t, WithObserver(obs))

	line, err := s.Increment(ctx, product("a", "1"))
	require.NoError(t, err)
	assert.Equal(t, 1, line.Quantity)
}

func TestStore_ObserverToldWhenNotDurable(t *testing.T) {
	ctx := context.Background()
	var last Change
	obs := ObserverFunc(func(_ context.Context, c Change) error {
		last = c
		return nil
	})
	adapter := memory.New(0)
	s := New(adapter, logger.Discard(), WithObserver(obs))
	adapter.SetDisabled(true)

	_, err := s.Increment(ctx, product("a", "1"))
	require.Error(t, err)
	assert.False(t, last.Durable)
}

func TestStore_ObserverSeesCheckedOutContents(t *testing.T) {
	ctx := context.Background()
	var last Change
	obs := ObserverFunc(func(_ context.Context, c Change) error {
		last = c
		return nil
	})
	s, _ := newMemoryStore(t, WithObserver(obs))
	_, _ = s.Increment(ctx, product("a", "2"))

	_, err := s.Checkout(ctx)
	require.NoError(t, err)

	assert.Equal(t, OpCheckout, last.Op)
	assert.Empty(t, last.Lines)
	require.NotNil(t, last.CheckedOut)
	assert.Equal(t, "2", last.CheckedOut.Total.String())
	assert.Len(t, last.CheckedOut.Lines, 1)
}
