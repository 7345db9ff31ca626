package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readiness(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)

	h.ReadinessHandler().ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	h := NewHandler()
	h.Register("storage", func(ctx context.Context) error { return fmt.Errorf("down") })
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)

	h.LivenessHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUp, resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Empty(t, resp.Checks)
}

func TestReadinessHandler_AllHealthy(t *testing.T) {
	h := NewHandler()
	h.Register("storage", func(ctx context.Context) error { return nil })
	h.RegisterOptional("catalog", func(ctx context.Context) error { return nil })

	code, resp := readiness(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Equal(t, StatusUp, resp.Checks["storage"].Status)
	assert.Equal(t, StatusUp, resp.Checks["catalog"].Status)
	assert.True(t, resp.Checks["catalog"].Optional)
}

func TestReadinessHandler_RequiredDown(t *testing.T) {
	h := NewHandler()
	h.Register("storage", func(ctx context.Context) error { return fmt.Errorf("connection refused") })
	h.RegisterOptional("kafka", func(ctx context.Context) error { return nil })

	code, resp := readiness(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, StatusDown, resp.Checks["storage"].Status)
	assert.Equal(t, "connection refused", resp.Checks["storage"].Error)
	assert.Equal(t, StatusUp, resp.Checks["kafka"].Status)
}

func TestReadinessHandler_OptionalDownIsDegraded(t *testing.T) {
	h := NewHandler()
	h.Register("storage", func(ctx context.Context) error { return nil })
	h.RegisterOptional("catalog", func(ctx context.Context) error { return fmt.Errorf("circuit open") })
	h.RegisterOptional("kafka", func(ctx context.Context) error { return fmt.Errorf("broker unreachable") })

	code, resp := readiness(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, StatusDown, resp.Checks["catalog"].Status)
	assert.Equal(t, StatusDown, resp.Checks["kafka"].Status)
}

func TestReadinessHandler_RequiredWinsOverOptional(t *testing.T) {
	h := NewHandler()
	h.Register("storage", func(ctx context.Context) error { return fmt.Errorf("db down") })
	h.RegisterOptional("catalog", func(ctx context.Context) error { return fmt.Errorf("catalog down") })

	code, resp := readiness(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, resp.Status)
}

func TestReadinessHandler_NoCheckers(t *testing.T) {
	code, resp := readiness(t, NewHandler())

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Status)
}

func TestRegister_Overwrite(t *testing.T) {
	h := NewHandler()
	h.Register("storage", func(ctx context.Context) error { return fmt.Errorf("fail") })
	h.Register("storage", func(ctx context.Context) error { return nil })

	code, resp := readiness(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Checks["storage"].Status)
}

func TestCheck_RunsConcurrently(t *testing.T) {
	h := NewHandler()
	var started atomic.Int32
	release := make(chan struct{})
	slow := func(ctx context.Context) error {
		if started.Add(1) == 3 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.Register("a", slow)
	h.Register("b", slow)
	h.Register("c", slow)
	h.SetTimeout(2 * time.Second)

	resp := h.Check(context.Background())

	assert.Equal(t, StatusUp, resp.Status)
	assert.Len(t, resp.Checks, 3)
}

func TestCheck_TimeoutMarksDown(t *testing.T) {
	h := NewHandler()
	h.SetTimeout(20 * time.Millisecond)
	h.Register("storage", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	resp := h.Check(context.Background())

	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["storage"].Error)
}
