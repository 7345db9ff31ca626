package store

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrDeserialization  = errors.New("cart state is not valid serialized data")
	ErrPersistenceWrite = errors.New("cart state was not durably stored")
	ErrPersistenceRead  = errors.New("cart state could not be read")
)

// DeserializationError reports a persisted blob that could not be decoded.
// The store has already reset itself to an empty cart when this is returned.
type DeserializationError struct {
	Key string
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("decode cart state %q: %v", e.Key, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

func (e *DeserializationError) Is(target error) bool { return target == ErrDeserialization }

// PersistenceReadError reports an adapter that failed to return the blob at load.
// The store has already reset itself to an empty cart when this is returned.
type PersistenceReadError struct {
	Key string
	Err error
}

func (e *PersistenceReadError) Error() string {
	return fmt.Sprintf("read cart state %q: %v", e.Key, e.Err)
}

func (e *PersistenceReadError) Unwrap() error { return e.Err }

func (e *PersistenceReadError) Is(target error) bool { return target == ErrPersistenceRead }

// PersistenceWriteError reports that a mutation was applied in memory but the
// adapter did not store it. The in-memory state is not rolled back.
type PersistenceWriteError struct {
	Key string
	Op  Op
	Err error
}

func (e *PersistenceWriteError) Error() string {
	return fmt.Sprintf("persist cart state %q after %s: %v", e.Key, e.Op, e.Err)
}

func (e *PersistenceWriteError) Unwrap() error { return e.Err }

func (e *PersistenceWriteError) Is(target error) bool { return target == ErrPersistenceWrite }
