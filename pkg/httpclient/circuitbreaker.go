package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes a Breaker. Zero Interval never resets the closed-state
// counts; zero MaxRequests lets one trial request through while half-open.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration // open -> half-open
	FailureRatio float64
	MinRequests  uint32 // requests seen before FailureRatio is applied
}

// DefaultBreakerConfig suits a rarely called upstream such as the catalog.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopcart_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcart_circuit_breaker_rejections_total",
			Help: "Requests refused without calling upstream because the breaker was open",
		},
		[]string{"name"},
	)
)

var stateValues = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

// ErrCircuitOpen is returned while the breaker refuses requests.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Breaker puts a gobreaker circuit breaker in front of a Client. Transport
// failures and 5xx answers count against the upstream; 4xx answers do not.
type Breaker struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[*http.Response]
	name   string
}

// NewBreaker wraps client.
func NewBreaker(client *Client, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= cfg.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateValues[to])
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Breaker{
		client: client,
		cb:     gobreaker.NewCircuitBreaker[*http.Response](settings),
		name:   cfg.Name,
	}
}

// Do sends req through the breaker. A 5xx answer comes back as *StatusError
// with its body consumed.
func (b *Breaker) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := b.cb.Execute(func() (*http.Response, error) {
		resp, err := b.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, NewStatusError(resp)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		breakerRejections.WithLabelValues(b.name).Inc()
	}
	return resp, err
}

// Get performs a JSON GET through the breaker.
func (b *Breaker) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := newGet(ctx, url)
	if err != nil {
		return nil, err
	}
	return b.Do(ctx, req)
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Ping fails with ErrCircuitOpen while the breaker is open. It never calls upstream.
func (b *Breaker) Ping(context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	return nil
}

// drain discards what is left of a body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
