package users

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the user administration routes. guard must
// authenticate the caller and require the Users menu.
func RegisterRoutes(r chi.Router, handler *Handler, guard func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Put("/users/{id}/state", handler.UpdateState)
		r.Post("/users/{id}/reset-password", handler.ResetPassword)
		r.Delete("/sessions/{id}", handler.ClearSession)
	})
}
