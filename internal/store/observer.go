package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/utafrali/shopcart/internal/domain"
)

// Op names a cart mutation.
type Op string

const (
	OpIncrement Op = "increment"
	OpDecrement Op = "decrement"
	OpRemove    Op = "remove"
	OpClear     Op = "clear"
	OpCheckout  Op = "checkout"
)

// Change describes the cart right after a mutation returned.
type Change struct {
	Op        Op
	ProductID string
	// Line is the affected line for increment and decrement, nil otherwise.
	Line  *domain.CartLine
	Lines []domain.CartLine
	Total decimal.Decimal
	// CheckedOut holds the purchased contents for a checkout.
	CheckedOut *Snapshot
	Durable    bool
}

// Observer is notified after every mutation that changed the cart. Errors are
// logged by the store and never fail the mutation. Observers run synchronously
// inside the mutation, so a slow observer holds up the caller and anything
// the caller has locked around the store.
type Observer interface {
	CartChanged(ctx context.Context, change Change) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change) error

// CartChanged calls f.
func (f ObserverFunc) CartChanged(ctx context.Context, change Change) error {
	return f(ctx, change)
}
