package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
	UserAgent       string
}

// DefaultConfig returns defaults suited to fetching small static documents.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 8,
		UserAgent:       "shopcart/1.0",
	}
}

// Client is an http.Client that retries transient failures.
type Client struct {
	httpClient *http.Client
	config     Config
}

// New builds a Client with its own pooled transport.
func New(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Transport: newTransport(cfg.MaxConnsPerHost), Timeout: cfg.Timeout},
		config:     cfg,
	}
}

func newTransport(maxConns int) *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxConns,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// Do sends a bodiless request. Network errors and 5xx responses (except 501)
// are retried up to MaxRetries times with capped exponential backoff; the
// last response is returned as is.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if c.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	for attempt := 0; ; attempt++ {
		last := attempt >= c.config.MaxRetries
		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil && (last || !isRetryableError(err)):
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
		case err == nil && (last || !retryableStatus(resp.StatusCode)):
			return resp, nil
		case err == nil:
			_ = resp.Body.Close()
		}

		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// backoff is the wait before retry number attempt+1.
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.config.RetryWaitMin << uint(attempt)
	if wait <= 0 || wait > c.config.RetryWaitMax {
		return c.config.RetryWaitMax
	}
	return wait
}

func retryableStatus(status int) bool {
	return status >= 500 && status != http.StatusNotImplemented
}

// Get performs a JSON GET with retry.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := newGet(ctx, url)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func newGet(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
