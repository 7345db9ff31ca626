// Package storage defines the key-value text store the cart store persists into.
package storage

import (
	"context"
	"errors"
)

// Adapter failure modes. Implementations wrap one of these so callers can
// tell an absent key from a store that is disabled or full.
var (
	// ErrAbsent is returned by Read when the key holds no value.
	ErrAbsent = errors.New("storage: key absent")
	// ErrUnavailable means the backing store is disabled or unreachable.
	ErrUnavailable = errors.New("storage: unavailable")
	// ErrQuotaExceeded means the backing store refused a write for lack of space.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Adapter is a key-value text store.
type Adapter interface {
	// Read returns the text stored under key, or ErrAbsent.
	Read(ctx context.Context, key string) (string, error)

	// Write stores text under key, replacing any previous value.
	Write(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by adapters that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Failure returns err unless it only reports an absent key, which is an
// expected outcome of Read rather than a fault.
func Failure(err error) error {
	if errors.Is(err, ErrAbsent) {
		return nil
	}
	return err
}
