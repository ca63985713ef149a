package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/ask", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	l := NewClientLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	require.NotNil(t, l)
	handler := RateLimiter(l, zap.NewNop())(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("10.0.0.1:5000"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.2:5000"))
	assert.Equal(t, http.StatusOK, rec.Code, "other clients have their own bucket")
}

func TestRateLimiter_DisabledPassesThrough(t *testing.T) {
	l := NewClientLimiter(config.RateLimitConfig{RequestsPerSecond: 0})
	assert.Nil(t, l)

	handler := RateLimiter(l, nil)(okHandler())
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("10.0.0.1:5000"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientLimiter_Sweep(t *testing.T) {
	now := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)
	l := NewClientLimiter(config.RateLimitConfig{RequestsPerSecond: 5, Burst: 5})
	l.now = func() time.Time { return now }

	l.get("a")
	now = now.Add(8 * time.Minute)
	l.get("b")
	now = now.Add(5 * time.Minute)

	assert.Equal(t, 1, l.Sweep(), "a idled past the TTL")
}
