package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/shopcart/internal/catalog"
	"github.com/utafrali/shopcart/internal/config"
	"github.com/utafrali/shopcart/internal/event"
	handler "github.com/utafrali/shopcart/internal/handler/http"
	"github.com/utafrali/shopcart/internal/storage"
	"github.com/utafrali/shopcart/internal/store"
	"github.com/utafrali/shopcart/pkg/health"
	"github.com/utafrali/shopcart/pkg/httpclient"
	pkgkafka "github.com/utafrali/shopcart/pkg/kafka"
	"github.com/utafrali/shopcart/pkg/middleware"
	"github.com/utafrali/shopcart/pkg/tracing"
)

// ServiceName labels logs, traces and events emitted by the host.
const ServiceName = "shopcart"

// App wires together all dependencies and runs the shopcart host.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	storage        backend
	store          *store.Store
	catalog        *catalog.Provider
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown tracing.Shutdown
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	be, err := openStorage(ctx, cfg, logger)
	if err != nil {
		_ = tracerShutdown(ctx)
		return nil, err
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		storage:        be,
		tracerShutdown: tracerShutdown,
	}

	healthHandler := health.NewHandler()
	if p, ok := be.adapter.(storage.Pinger); ok {
		healthHandler.Register("storage", p.Ping)
	}

	opts := []store.Option{store.WithKey(cfg.StorageKey)}
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		opts = append(opts, store.WithObserver(event.NewPublisher(a.producer, cfg.StorageKey, logger)))
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// The store is usable after Load whatever it returns; a recovery has
	// already been logged as a warning.
	a.store = store.New(be.adapter, logger, opts...)
	if err := a.store.Load(ctx); err != nil {
		logger.Info("starting with an empty cart", slog.String("reason", err.Error()))
	}

	var catalogHandler *handler.CatalogHandler
	var lookup handler.ProductLookup
	if cfg.CatalogEnabled() {
		cb := httpclient.NewBreaker(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultBreakerConfig("catalog"),
			logger,
		)
		a.catalog = catalog.NewProvider(cfg.CatalogURL, cb, cfg.CatalogRefresh, logger)
		catalogHandler = handler.NewCatalogHandler(a.catalog, logger)
		lookup = a.catalog
		healthHandler.RegisterOptional("catalog", a.catalog.Ping)
	}

	router := handler.NewRouter(
		handler.NewCartHandler(a.store, lookup, logger),
		catalogHandler,
		healthHandler,
		logger,
		handler.RouterConfig{
			ServiceName: ServiceName,
			CartKey:     a.store.Key(),
			CORS:        middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins},
			Timeout:     cfg.RequestTimeout,
		},
	)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. The catalog is warmed in the background.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.catalog != nil {
		g.Go(func() error {
			if err := a.catalog.Refresh(gctx); err != nil {
				a.logger.Warn("catalog not loaded at startup", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.storage.close(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
