// Package memory provides an in-process storage adapter with an optional byte
// quota, matching the behavior of a browser's local storage.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/utafrali/shopcart/internal/storage"
)

// Store is an in-memory storage.Adapter.
type Store struct {
	mu       sync.RWMutex
	data     map[string]string
	quota    int
	disabled bool
}

// New creates a store. quota is the maximum number of bytes (keys plus values)
// the store accepts; zero means unlimited.
func New(quota int) *Store {
	return &Store{
		data:  make(map[string]string),
		quota: quota,
	}
}

// SetDisabled toggles the store into a state where every call fails with
// storage.ErrUnavailable.
func (s *Store) SetDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = disabled
}

// Read returns the value stored under key.
func (s *Store) Read(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.disabled {
		return "", fmt.Errorf("memory read %q: %w", key, storage.ErrUnavailable)
	}
	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrAbsent
	}
	return v, nil
}

// Write stores value under key unless doing so would exceed the quota.
func (s *Store) Write(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		return fmt.Errorf("memory write %q: %w", key, storage.ErrUnavailable)
	}
	if s.quota > 0 {
		used := s.usedLocked()
		if old, ok := s.data[key]; ok {
			used -= len(key) + len(old)
		}
		if used+len(key)+len(value) > s.quota {
			return fmt.Errorf("memory write %q (%d bytes, quota %d): %w", key, len(value), s.quota, storage.ErrQuotaExceeded)
		}
	}
	s.data[key] = value
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		return fmt.Errorf("memory delete %q: %w", key, storage.ErrUnavailable)
	}
	delete(s.data, key)
	return nil
}

// Ping reports whether the store is enabled.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disabled {
		return storage.ErrUnavailable
	}
	return nil
}

// Used returns the number of bytes currently held.
func (s *Store) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedLocked()
}

func (s *Store) usedLocked() int {
	var n int
	for k, v := range s.data {
		n += len(k) + len(v)
	}
	return n
}

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Pinger  = (*Store)(nil)
)
