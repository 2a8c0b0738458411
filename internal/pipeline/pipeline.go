// Package pipeline assembles the HTTP security gate and every route behind it.
package pipeline

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/article"
	"github.com/codec-agences/admin-backend/internal/auth"
	"github.com/codec-agences/admin-backend/internal/health"
	"github.com/codec-agences/admin-backend/internal/metrics"
	"github.com/codec-agences/admin-backend/internal/middleware"
	"github.com/codec-agences/admin-backend/internal/repository"
	"github.com/codec-agences/admin-backend/internal/users"
)

// Stage names, in the order a request meets them
const (
	StageRequestID       = "request_id"
	StageLogging         = "logging"
	StageRecoverer       = "recoverer"
	StageMetrics         = "metrics"
	StageSessionPolicy   = "session_policy"
	StageCORS            = "cors"
	StageSecurityHeaders = "security_headers"
	StageAPIKey          = "api_key"
	StageThreatGuard     = "threat_guard"
	StageRateGate        = "rate_gate"
	StageAuthenticate    = "authenticate"
	StageAuthorize       = "authorize"
)

// Order returns the stage names in execution order
func Order() []string {
	return []string{
		StageRequestID,
		StageLogging,
		StageRecoverer,
		StageMetrics,
		StageSessionPolicy,
		StageCORS,
		StageSecurityHeaders,
		StageAPIKey,
		StageThreatGuard,
		StageRateGate,
		StageAuthenticate,
		StageAuthorize,
	}
}

// loginPaths are scanned by the threat guard
var loginPaths = []string{
	"/api/auth/login",
	"/api/auth/close-session-and-login",
}

// Guard authenticates the caller and checks menu grants
type Guard interface {
	Authenticate(next http.Handler) http.Handler
	RequireMenu(menuID int) func(http.Handler) http.Handler
}

// Deps are the collaborators Build wires together
type Deps struct {
	Logger          *slog.Logger
	Render          apperr.Renderer
	AllowedOrigins  []string
	APIKey          string
	ProxyMarker     string
	SessionLifetime time.Duration

	Threats  middleware.Inspector
	RateGate *middleware.RateGate
	Guard    Guard

	Auth     *auth.AuthHandler
	Users    *users.Handler
	Articles *article.Handler
	Health   *health.Handler
}

// Build returns the root handler
func Build(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.StructuredLogger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.SessionPolicy(d.ProxyMarker, d.SessionLifetime))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.APIKeyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.SecurityHeaders)

	if d.Health != nil {
		r.Get("/health", d.Health.Health)
		r.Get("/health/ready", d.Health.Readiness)
		r.Get("/health/live", d.Health.Liveness)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKey(d.APIKey, d.Render))
		if d.Threats != nil {
			r.Use(onPaths(loginPaths, middleware.ThreatGuard(d.Threats, d.Render)))
		}
		if d.RateGate != nil {
			r.Use(d.RateGate.Handler)
		}

		if d.Auth != nil {
			auth.RegisterRoutes(r, d.Auth)
		}
		if d.Articles != nil {
			article.RegisterRoutes(r, d.Articles, d.protect(repository.MenuArticles))
		}
		if d.Users != nil {
			users.RegisterRoutes(r, d.Users, d.protect(repository.MenuUsers))
		}
	})

	return r
}

// protect chains Authenticate and RequireMenu for one menu
func (d Deps) protect(menuID int) func(http.Handler) http.Handler {
	authorize := d.Guard.RequireMenu(menuID)
	return func(next http.Handler) http.Handler {
		return d.Guard.Authenticate(authorize(next))
	}
}

// onPaths applies mw only to requests whose path ends with one of paths.
// Suffix matching keeps proxied paths carrying a prefix covered.
func onPaths(paths []string, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := strings.TrimSuffix(r.URL.Path, "/")
			for _, suffix := range paths {
				if strings.HasSuffix(p, suffix) {
					guarded.ServeHTTP(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
