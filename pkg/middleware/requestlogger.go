package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/shopcart/pkg/logger"
)

// RequestLogger builds a request-scoped logger enriched with correlation_id,
// cart_key, trace_id and span_id and stores it in the request context.
// Handlers retrieve it with logger.FromContext.
//
// Mount it after RequestLogging and Tracing so both IDs are available.
func RequestLogger(base *slog.Logger, cartKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if cartKey != "" {
				ctx = logger.WithCartKey(ctx, cartKey)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
