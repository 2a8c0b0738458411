package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		status int
		want   string
	}{
		{"all up", map[string]Check{"database": up, "redis": up}, http.StatusOK, "healthy"},
		{"redis down", map[string]Check{"database": up, "redis": down}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Config{Checks: tt.checks, Version: "test"})
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.want || len(resp.Services) != len(tt.checks) {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestReadiness(t *testing.T) {
	h := NewHandler(Config{Checks: map[string]Check{"database": up, "redis": down}, Critical: []string{"database"}})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("non-critical failure must not fail readiness, got %d", rec.Code)
	}

	h.SetReady(false)
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("draining service reported ready: %d", rec.Code)
	}
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(Config{}).Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
