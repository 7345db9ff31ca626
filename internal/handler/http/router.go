package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/shopcart/pkg/health"
	"github.com/utafrali/shopcart/pkg/middleware"
)

// RouterConfig carries the settings the router needs beyond its handlers.
type RouterConfig struct {
	ServiceName string
	CartKey     string
	CORS        middleware.CORSConfig
	Timeout     time.Duration
}

// NewRouter creates a chi router with all shopcart routes registered. The
// catalog handler may be nil when no catalog is configured.
func NewRouter(
	cartHandler *CartHandler,
	catalogHandler *CatalogHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.Timeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger, cfg.CartKey))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)

		r.Get("/lines/{productId}", cartHandler.GetLine)
		r.Delete("/lines/{productId}", cartHandler.RemoveLine)

		r.Post("/increment", cartHandler.Increment)
		r.Post("/decrement", cartHandler.Decrement)
		r.Post("/checkout", cartHandler.Checkout)
	})

	if catalogHandler != nil {
		r.Route("/api/v1/catalog", func(r chi.Router) {
			r.Get("/", catalogHandler.ListCategories)
			r.Get("/{categoryId}", catalogHandler.GetCategory)
		})
	}

	return r
}
