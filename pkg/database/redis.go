package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes one Redis endpoint.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	PoolSize    int
}

// DefaultRedisConfig returns a config for addr with conservative timeouts
// and a small pool; the cart store issues at most one command at a time.
func DefaultRedisConfig(addr string) RedisConfig {
	return RedisConfig{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		PoolSize:    4,
	}
}

// NewRedisClient connects to Redis and fails unless the server answers PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		PoolSize:    cfg.PoolSize,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
