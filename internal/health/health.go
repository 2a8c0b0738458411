// Package health provides health check endpoints for the backend service.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/codec-agences/admin-backend/internal/apperr"
)

// ServiceStatus represents the status of a single dependency
type ServiceStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the structured health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
	Version   string                   `json:"version,omitempty"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Ready     bool   `json:"ready"`
	Timestamp string `json:"timestamp"`
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Alive     bool   `json:"alive"`
	Timestamp string `json:"timestamp"`
}

// Check pings one dependency
type Check func(ctx context.Context) error

// Postgres checks the pgx pool
func Postgres(pool *pgxpool.Pool) Check {
	return pool.Ping
}

// SQL checks the sqlx handle used for listing and maintenance queries
func SQL(db *sqlx.DB) Check {
	return db.PingContext
}

// Redis checks the session cache
func Redis(client *redis.Client) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// Handler handles health check requests
type Handler struct {
	checks   map[string]Check
	critical map[string]bool
	version  string
	timeout  time.Duration
	ready    bool
	mu       sync.RWMutex
}

// Config holds health handler configuration
type Config struct {
	// Checks are reported by /health; Critical names also gate /health/ready
	Checks   map[string]Check
	Critical []string
	Version  string
	Timeout  time.Duration // Default: 5 seconds
}

// NewHandler creates a new health check handler
func NewHandler(cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	critical := make(map[string]bool, len(cfg.Critical))
	for _, name := range cfg.Critical {
		critical[name] = true
	}

	return &Handler{
		checks:   cfg.Checks,
		critical: critical,
		version:  cfg.Version,
		timeout:  timeout,
		ready:    true,
	}
}

// SetReady sets the readiness state of the service; shutdown flips it off first
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the current readiness state
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Health reports every dependency
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services := make(map[string]ServiceStatus, len(h.checks))
	overall := "healthy"
	for _, name := range h.names() {
		status := run(ctx, h.checks[name])
		services[name] = status
		if status.Status != "up" {
			overall = "degraded"
		}
	}

	code := http.StatusOK
	if overall != "healthy" {
		code = http.StatusServiceUnavailable
	}
	apperr.WriteJSON(w, code, HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
		Version:   h.version,
	})
}

// Readiness fails while shutting down or when a critical dependency is down
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ready := h.IsReady()
	for _, name := range h.names() {
		if !ready {
			break
		}
		if h.critical[name] && run(ctx, h.checks[name]).Status != "up" {
			ready = false
		}
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	apperr.WriteJSON(w, code, ReadinessResponse{Ready: ready, Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

// Liveness handles the liveness probe endpoint
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, LivenessResponse{Alive: true, Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

func (h *Handler) names() []string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func run(ctx context.Context, check Check) ServiceStatus {
	if check == nil {
		return ServiceStatus{Status: "down", Error: "not configured"}
	}
	start := time.Now()
	err := check(ctx)
	latency := time.Since(start)
	if err != nil {
		return ServiceStatus{Status: "down", Latency: latency.String(), Error: err.Error()}
	}
	return ServiceStatus{Status: "up", Latency: latency.String()}
}
