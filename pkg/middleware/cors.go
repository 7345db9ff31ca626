package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	// AllowedOrigins lists exact origins. "*" allows any origin and disables
	// credentials.
	AllowedOrigins []string

	// AllowCredentials lets the browser send cookies to an allowed origin.
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	MaxAge int
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Accept", "Content-Type", CorrelationHeader, "traceparent", "tracestate",
	}, ", ")
	corsExposed = strings.Join([]string{CorrelationHeader, DurableHeader}, ", ")
)

// DurableHeader tells the client whether a mutation reached storage.
const DurableHeader = "X-Cart-Durable"

// CORS answers preflight requests and decorates responses for allowed
// origins. Requests from other origins pass through without CORS headers,
// so the browser blocks them.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	wildcard := false
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			wildcard = true
		}
		origins[o] = struct{}{}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 600
	}
	maxAgeStr := strconv.Itoa(maxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			_, allowed := origins[origin]
			switch {
			case wildcard:
				h.Set("Access-Control-Allow-Origin", "*")
			case allowed:
				h.Set("Access-Control-Allow-Origin", origin)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			default:
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Expose-Headers", corsExposed)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", maxAgeStr)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
