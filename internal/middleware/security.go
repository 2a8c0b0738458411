package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/session"
)

// APIKeyHeader carries the shared client key
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key header does not match key. An
// empty key disables the check.
func APIKey(key string, render apperr.Renderer) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			got := []byte(r.Header.Get(APIKeyHeader))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				render.Write(w, r, apperr.Authentication("Invalid or missing API key", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the response headers applied to every request
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// SessionPolicy classifies the request route and stores the matching cookie
// policy on the context
func SessionPolicy(marker string, lifetime time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := session.Classify(r, marker)
			ctx := session.WithPolicy(r.Context(), session.PolicyFor(route, lifetime))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
