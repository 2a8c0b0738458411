package auth

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the authentication routes under /auth. The
// caller's pipeline scans the credential-bearing routes for threats.
func RegisterRoutes(r chi.Router, handler *AuthHandler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", handler.Login)
		r.Post("/close-session-and-login", handler.CloseSessionAndLogin)
		r.Post("/logout", handler.Logout)
	})
}
