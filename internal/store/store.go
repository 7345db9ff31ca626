// Package store holds the shopper's cart: the authoritative in-memory state,
// its persistence through a storage.Adapter, and the mutations on it.
//
// A Store is not safe for concurrent use. Callers serialize access; every
// mutation has finished its persistence attempt when it returns.
package store

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/shopcart/internal/domain"
	"github.com/utafrali/shopcart/internal/storage"
	apperrors "github.com/utafrali/shopcart/pkg/errors"
)

// DefaultKey is the persistence key the whole cart is stored under.
const DefaultKey = "__cart__"

var tracer = otel.Tracer("github.com/utafrali/shopcart/internal/store")

// Snapshot is the cart contents together with its aggregates.
type Snapshot struct {
	Lines     []domain.CartLine
	Total     decimal.Decimal
	ItemCount int
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the persistence key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithObserver registers an observer notified after each mutation.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Store is the single writer of the cart state.
type Store struct {
	adapter   storage.Adapter
	key       string
	logger    *slog.Logger
	state     *domain.CartState
	observers []Observer
}

// New creates a store holding an empty cart. Call Load to pick up persisted state.
func New(adapter storage.Adapter, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		adapter: adapter,
		key:     DefaultKey,
		logger:  logger,
		state:   domain.NewCartState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the persistence key.
func (s *Store) Key() string {
	return s.key
}

// Load replaces the in-memory cart with the persisted one. An absent key is an
// empty cart. When the blob is unreadable or malformed the store resets to an
// empty cart, logs a warning and returns *PersistenceReadError or
// *DeserializationError; the store is usable either way.
func (s *Store) Load(ctx context.Context) error {
	blob, err := s.adapter.Read(ctx, s.key)
	if err != nil {
		s.state = domain.NewCartState()
		cartLines.Set(0)
		if errors.Is(err, storage.ErrAbsent) {
			s.logger.DebugContext(ctx, "no persisted cart, starting empty", slog.String("key", s.key))
			return nil
		}
		loadRecoveriesTotal.WithLabelValues("read").Inc()
		s.logger.WarnContext(ctx, "persisted cart unreadable, starting empty",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return &PersistenceReadError{Key: s.key, Err: err}
	}

	state, err := decodeState(blob)
	if err != nil {
		s.state = domain.NewCartState()
		cartLines.Set(0)
		loadRecoveriesTotal.WithLabelValues("decode").Inc()
		s.logger.WarnContext(ctx, "persisted cart is malformed, starting empty",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return &DeserializationError{Key: s.key, Err: err}
	}

	s.state = state
	cartLines.Set(float64(state.Len()))
	s.logger.DebugContext(ctx, "cart loaded",
		slog.String("key", s.key),
		slog.Int("lines", state.Len()),
	)
	return nil
}

// AllLines returns a snapshot of every line in insertion order. Later
// mutations are not reflected in a returned slice.
func (s *Store) AllLines() []domain.CartLine {
	return s.state.Lines()
}

// LineFor looks up a line by product ID.
func (s *Store) LineFor(productID string) (domain.CartLine, bool) {
	return s.state.Get(productID)
}

// Total is domain.CartTotal over the current lines.
func (s *Store) Total() decimal.Decimal {
	return s.state.Total()
}

// Snapshot returns the lines with their total and item count.
func (s *Store) Snapshot() Snapshot {
	lines := s.state.Lines()
	return Snapshot{
		Lines:     lines,
		Total:     domain.CartTotal(lines),
		ItemCount: domain.ItemCount(lines),
	}
}

// Increment adds one to the quantity of the descriptor's product. An existing
// line keeps its stored fields; the descriptor only seeds a new line. The
// returned error, if any, is an invalid-input error (nothing changed) or a
// *PersistenceWriteError (memory changed, storage did not).
func (s *Store) Increment(ctx context.Context, d domain.ProductDescriptor) (domain.CartLine, error) {
	line, ok := s.state.Get(d.ID)
	if !ok {
		if msg := d.Validate(); msg != "" {
			return domain.CartLine{}, apperrors.InvalidInput(msg)
		}
		line = domain.NewLine(d)
	}
	if line.Quantity == math.MaxInt {
		return line, apperrors.InvalidInput("quantity is already at its maximum")
	}

	line.Quantity++
	s.state.Put(line)
	mutationsTotal.WithLabelValues(string(OpIncrement)).Inc()

	err := s.persist(ctx, OpIncrement)
	s.logger.DebugContext(ctx, "cart line incremented",
		slog.String("product_id", line.ProductID),
		slog.Int("quantity", line.Quantity),
	)
	s.notify(ctx, Change{Op: OpIncrement, ProductID: line.ProductID, Line: &line, Durable: err == nil})
	return line, err
}

// Decrement subtracts one from the quantity of the descriptor's product,
// never going below zero. A line reaching zero stays in the cart. Decrementing
// a product that has no line leaves the cart without one and returns a
// zero-quantity line seeded from the descriptor. The state is persisted in
// every case.
func (s *Store) Decrement(ctx context.Context, d domain.ProductDescriptor) (domain.CartLine, error) {
	line, ok := s.state.Get(d.ID)
	if !ok {
		if msg := d.Validate(); msg != "" {
			return domain.CartLine{}, apperrors.InvalidInput(msg)
		}
		return domain.NewLine(d), s.persist(ctx, OpDecrement)
	}

	if line.Quantity > 0 {
		line.Quantity--
	}
	s.state.Put(line)
	mutationsTotal.WithLabelValues(string(OpDecrement)).Inc()

	err := s.persist(ctx, OpDecrement)
	s.logger.DebugContext(ctx, "cart line decremented",
		slog.String("product_id", line.ProductID),
		slog.Int("quantity", line.Quantity),
	)
	s.notify(ctx, Change{Op: OpDecrement, ProductID: line.ProductID, Line: &line, Durable: err == nil})
	return line, err
}

// RemoveLine deletes a line. Removing an absent line is a no-op, but the state
// is still persisted.
func (s *Store) RemoveLine(ctx context.Context, productID string) error {
	removed := s.state.Remove(productID)
	if removed {
		mutationsTotal.WithLabelValues(string(OpRemove)).Inc()
	}

	err := s.persist(ctx, OpRemove)
	if removed {
		s.logger.DebugContext(ctx, "cart line removed", slog.String("product_id", productID))
		s.notify(ctx, Change{Op: OpRemove, ProductID: productID, Durable: err == nil})
	}
	return err
}

// Clear empties the cart and persists the empty state.
func (s *Store) Clear(ctx context.Context) error {
	s.state.Reset()
	mutationsTotal.WithLabelValues(string(OpClear)).Inc()

	err := s.persist(ctx, OpClear)
	s.logger.DebugContext(ctx, "cart cleared")
	s.notify(ctx, Change{Op: OpClear, Durable: err == nil})
	return err
}

// Checkout hands the cart off: it returns the snapshot being bought, empties
// the cart and deletes the persisted key.
func (s *Store) Checkout(ctx context.Context) (Snapshot, error) {
	snap := s.Snapshot()
	s.state.Reset()
	cartLines.Set(0)
	mutationsTotal.WithLabelValues(string(OpCheckout)).Inc()

	var err error
	if delErr := s.adapter.Delete(ctx, s.key); delErr != nil {
		persistFailuresTotal.WithLabelValues(string(OpCheckout)).Inc()
		s.logger.ErrorContext(ctx, "persisted cart not deleted at checkout",
			slog.String("key", s.key),
			slog.String("error", delErr.Error()),
		)
		err = &PersistenceWriteError{Key: s.key, Op: OpCheckout, Err: delErr}
	}

	s.logger.InfoContext(ctx, "cart checked out",
		slog.Int("lines", len(snap.Lines)),
		slog.Int("item_count", snap.ItemCount),
		slog.String("total", snap.Total.String()),
	)
	s.notify(ctx, Change{Op: OpCheckout, CheckedOut: &snap, Durable: err == nil})
	return snap, err
}

// persist writes the whole state under the store key.
func (s *Store) persist(ctx context.Context, op Op) error {
	ctx, span := tracer.Start(ctx, "shopcart.persist",
		trace.WithAttributes(
			attribute.String("cart.op", string(op)),
			attribute.Int("cart.lines", s.state.Len()),
		),
	)
	defer span.End()

	cartLines.Set(float64(s.state.Len()))

	blob, err := encodeState(s.state)
	if err == nil {
		err = s.adapter.Write(ctx, s.key, blob)
	}
	if err != nil {
		persistFailuresTotal.WithLabelValues(string(op)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "cart state not persisted")
		s.logger.ErrorContext(ctx, "cart state not persisted",
			slog.String("key", s.key),
			slog.String("op", string(op)),
			slog.String("error", err.Error()),
		)
		return &PersistenceWriteError{Key: s.key, Op: op, Err: err}
	}
	return nil
}

// notify fills in the post-mutation lines and total and hands the change to
// every observer.
func (s *Store) notify(ctx context.Context, change Change) {
	if len(s.observers) == 0 {
		return
	}
	change.Lines = s.state.Lines()
	change.Total = domain.CartTotal(change.Lines)
	for _, o := range s.observers {
		if err := o.CartChanged(ctx, change); err != nil {
			s.logger.ErrorContext(ctx, "cart observer failed",
				slog.String("op", string(change.Op)),
				slog.String("error", err.Error()),
			)
		}
	}
}
