// Package redis implements storage.Adapter on top of Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/shopcart/internal/storage"
)

const keyPrefix = "shopcart:"

// Store implements storage.Adapter using Redis strings.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Redis-backed adapter. A zero ttl stores keys without expiry.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// Read fetches the value stored under key.
func (s *Store) Read(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrAbsent
		}
		return "", fmt.Errorf("redis get %s: %w", key, classify(err))
	}
	return val, nil
}

// Write stores value under key with the configured TTL.
func (s *Store) Write(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, classify(err))
	}
	return nil
}

// Delete removes key from Redis.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, classify(err))
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", classify(err))
	}
	return nil
}

// classify maps a Redis error onto the storage failure modes. Server replies
// with an OOM prefix mean maxmemory refused the write.
func classify(err error) error {
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		if strings.HasPrefix(redisErr.Error(), "OOM") {
			return fmt.Errorf("%w: %s", storage.ErrQuotaExceeded, redisErr.Error())
		}
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Pinger  = (*Store)(nil)
)
