package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/auth"
	appctx "github.com/codec-agences/admin-backend/internal/context"
	"github.com/codec-agences/admin-backend/internal/repository"
	"github.com/codec-agences/admin-backend/internal/session"
)

// LivenessChecker confirms that a cached session still maps to an open row
// owned by an Active user
type LivenessChecker interface {
	CheckLiveness(ctx context.Context, userID, sessionID int64) (*repository.User, error)
}

// MenuAuthorizer checks a role/menu grant
type MenuAuthorizer interface {
	Authorize(ctx context.Context, userID int64, menuID int) error
}

// AuthMiddleware handles session authentication and menu authorization for protected routes
type AuthMiddleware struct {
	sessions   *session.Manager
	liveness   LivenessChecker
	authorizer MenuAuthorizer
	render     apperr.Renderer
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(sessions *session.Manager, liveness LivenessChecker, authorizer MenuAuthorizer, render apperr.Renderer) *AuthMiddleware {
	return &AuthMiddleware{
		sessions:   sessions,
		liveness:   liveness,
		authorizer: authorizer,
		render:     render,
	}
}

// Authenticate resolves the session cookie and verifies the session is live
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, payload, err := m.sessions.Current(r.Context(), r)
		if err != nil {
			if errors.Is(err, session.ErrNoCookie) || errors.Is(err, session.ErrInvalidCookie) || errors.Is(err, session.ErrNotFound) {
				m.sessions.ClearCookie(w, r)
				m.render.Write(w, r, auth.ToAppError(auth.ErrSessionNotFound))
				return
			}
			m.render.Write(w, r, apperr.Upstream(err))
			return
		}

		user, err := m.liveness.CheckLiveness(r.Context(), payload.UserID, payload.SessionID)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, auth.ErrAccountInactive) {
				_ = m.sessions.End(r.Context(), w, r, token)
				m.render.Write(w, r, auth.ToAppError(err))
				return
			}
			m.render.Write(w, r, apperr.Upstream(err))
			return
		}

		noteIdentity(r.Context(), user.ID)
		ctx := appctx.WithIdentity(r.Context(), user.ID, user.Username, payload.SessionID, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireMenu denies the request unless the authenticated user's role holds
// a grant for menuID. It must run after Authenticate.
func (m *AuthMiddleware) RequireMenu(menuID int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := appctx.ExtractUserID(r.Context())
			if !ok {
				m.render.Write(w, r, apperr.Forbidden(auth.ErrForbidden))
				return
			}
			if err := m.authorizer.Authorize(r.Context(), userID, menuID); err != nil {
				m.render.Write(w, r, auth.ToAppError(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
