package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Pinger is a health-checkable dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	db    Pinger
	redis Pinger
}

// HealthHandlerOption configures the health handler.
type HealthHandlerOption func(*HealthHandler)

// WithDatabase adds the database readiness check.
func WithDatabase(db Pinger) HealthHandlerOption {
	return func(h *HealthHandler) { h.db = db }
}

// WithRedis adds the redis readiness check.
func WithRedis(redis Pinger) HealthHandlerOption {
	return func(h *HealthHandler) { h.redis = redis }
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(opts ...HealthHandlerOption) *HealthHandler {
	h := &HealthHandler{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// CheckResult is one dependency check outcome.
type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ReadyResponse is the readiness probe body.
type ReadyResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Ready handles GET /readyz. Dependencies are checked concurrently; any
// failure turns the response into a 503.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckResult)
	allHealthy := true

	var wg sync.WaitGroup
	var mu sync.Mutex

	check := func(name string, p Pinger) {
		defer wg.Done()
		result := checkDependency(ctx, p)
		mu.Lock()
		checks[name] = result
		if result.Status != "ok" {
			allHealthy = false
		}
		mu.Unlock()
	}

	if h.db != nil {
		wg.Add(1)
		go check("database", h.db)
	}
	if h.redis != nil {
		wg.Add(1)
		go check("redis", h.redis)
	}
	wg.Wait()

	resp := ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
	status := http.StatusOK
	if !allHealthy {
		resp.Status = "not ready"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

func checkDependency(ctx context.Context, p Pinger) CheckResult {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return CheckResult{
			Status:   "error",
			Duration: time.Since(start).String(),
			Error:    err.Error(),
		}
	}
	return CheckResult{
		Status:   "ok",
		Duration: time.Since(start).String(),
	}
}
