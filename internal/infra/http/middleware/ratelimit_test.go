package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/traceprint/api/internal/config"
	"github.com/traceprint/api/pkg/logger"
)

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	cfg := &config.RateLimitConfig{RequestsPerSec: 1, Burst: 3, CleanupInterval: time.Minute}
	rl := NewRateLimiter(cfg, logger.NewNop())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	cfg := &config.RateLimitConfig{RequestsPerSec: 1, Burst: 2, CleanupInterval: time.Minute}
	rl := NewRateLimiter(cfg, logger.NewNop())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	cfg := &config.RateLimitConfig{RequestsPerSec: 1, Burst: 1, CleanupInterval: time.Minute}
	rl := NewRateLimiter(cfg, logger.NewNop())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/test", nil)
	first.RemoteAddr = "10.0.0.3:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Second IP has its own bucket even though the first is exhausted.
	second := httptest.NewRequest(http.MethodGet, "/test", nil)
	second.RemoteAddr = "10.0.0.4:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitWithStop_DisabledWhenZero(t *testing.T) {
	cfg := &config.RateLimitConfig{RequestsPerSec: 0}
	mw, stop := RateLimitWithStop(cfg, logger.NewNop())
	defer stop()

	handler := mw(okHandler())

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		want       string
	}{
		{name: "remote addr only", remoteAddr: "192.168.1.5:8080", want: "192.168.1.5"},
		{name: "x-real-ip wins", remoteAddr: "192.168.1.5:8080", realIP: "203.0.113.7", want: "203.0.113.7"},
		{name: "first forwarded entry", remoteAddr: "192.168.1.5:8080", forwarded: "203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{name: "single forwarded entry", remoteAddr: "192.168.1.5:8080", forwarded: "203.0.113.10", want: "203.0.113.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
