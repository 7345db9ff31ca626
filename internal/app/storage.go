package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/shopcart/internal/config"
	"github.com/utafrali/shopcart/internal/storage"
	"github.com/utafrali/shopcart/internal/storage/memory"
	pgstore "github.com/utafrali/shopcart/internal/storage/postgres"
	redisstore "github.com/utafrali/shopcart/internal/storage/redis"
	sqlitestore "github.com/utafrali/shopcart/internal/storage/sqlite"
	"github.com/utafrali/shopcart/pkg/database"
)

// backend is an opened storage adapter and the function releasing it.
type backend struct {
	adapter storage.Adapter
	close   func() error
}

func nopClose() error { return nil }

// openStorage connects the adapter selected by cfg.Storage.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Info("using in-memory cart storage", slog.Int("quota_bytes", cfg.MemoryQuotaBytes))
		return backend{adapter: memory.New(cfg.MemoryQuotaBytes), close: nopClose}, nil

	case config.StorageRedis:
		rcfg := database.DefaultRedisConfig(cfg.RedisAddr)
		rcfg.Password = cfg.RedisPass
		rcfg.DB = cfg.RedisDB
		rdb, err := database.NewRedisClient(ctx, rcfg)
		if err != nil {
			return backend{}, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return backend{adapter: redisstore.New(rdb, cfg.TTL()), close: rdb.Close}, nil

	case config.StorageSQLite:
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return backend{}, fmt.Errorf("open sqlite storage: %w", err)
		}
		logger.Info("opened SQLite cart storage", slog.String("path", cfg.SQLitePath))
		return backend{adapter: s, close: s.Close}, nil

	case config.StoragePostgres:
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
		pool, err := database.NewPostgresPool(ctx, database.DefaultPostgresConfig(cfg.PostgresDSN), logger)
		if err != nil {
			return backend{}, fmt.Errorf("connect to postgres: %w", err)
		}
		s := pgstore.New(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("ensure postgres schema: %w", err)
		}
		if err := prometheus.Register(database.NewPoolStatsCollector(pool, ServiceName)); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		logger.Info("connected to PostgreSQL")
		return backend{adapter: s, close: func() error { pool.Close(); return nil }}, nil

	default:
		return backend{}, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}
