// Command server runs the shopcart HTTP service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/shopcart/internal/app"
	"github.com/utafrali/shopcart/internal/config"
	"github.com/utafrali/shopcart/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		slog.Error("shopcart exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run blocks until ctx is canceled or the service fails.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(app.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting shopcart",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("storage", cfg.Storage),
		slog.Bool("catalog", cfg.CatalogEnabled()),
		slog.Bool("kafka", cfg.KafkaEnabled()),
	)

	svc, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("run application: %w", err)
	}

	log.Info("shopcart stopped")
	return nil
}
