package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Checker checks the health of a single dependency.
type Checker func(ctx context.Context) error

// Status represents the health of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the JSON body returned by the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type check struct {
	fn       Checker
	critical bool
}

// Handler provides liveness and readiness endpoints. Critical check failures
// make readiness return 503; non-critical failures only mark the service
// degraded (a service that cannot publish events can still serve reads).
type Handler struct {
	mu     sync.RWMutex
	checks map[string]check
}

// NewHandler creates a health check handler.
func NewHandler() *Handler {
	return &Handler{checks: make(map[string]check)}
}

// Register adds a critical health checker.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check{fn: checker, critical: true}
}

// RegisterNonCritical adds a checker whose failure degrades the service
// without failing readiness.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check{fn: checker, critical: false}
}

// LivenessHandler returns 200 whenever the process is running.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(Response{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
		})
	}
}

// ReadinessHandler runs all registered checks and returns 200 or 503.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		h.mu.RLock()
		checks := make(map[string]check, len(h.checks))
		for k, v := range h.checks {
			checks[k] = v
		}
		h.mu.RUnlock()

		results := make(map[string]CheckResult, len(checks))
		overall := StatusUp

		for name, c := range checks {
			if err := c.fn(ctx); err != nil {
				results[name] = CheckResult{Status: StatusDown, Error: err.Error()}
				if c.critical {
					overall = StatusDown
				} else if overall == StatusUp {
					overall = StatusDegraded
				}
			} else {
				results[name] = CheckResult{Status: StatusUp}
			}
		}

		resp := Response{
			Status:    overall,
			Timestamp: time.Now().UTC(),
			Checks:    results,
		}

		w.Header().Set("Content-Type", "application/json")
		if overall == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
