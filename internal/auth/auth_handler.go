package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/httputil"
	"github.com/codec-agences/admin-backend/internal/session"
)

// Response codes specific to authentication
const (
	CodeAccountBlocked  = "ACCOUNT_BLOCKED"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeSessionMismatch = "SESSION_MISMATCH"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

// ConflictRequest represents the close-session-and-login request payload
type ConflictRequest struct {
	SessionID int64  `json:"sessionId" validate:"gt=0"`
	UserID    int64  `json:"userId" validate:"gt=0"`
	Username  string `json:"username" validate:"required,max=100"`
	Password  string `json:"password" validate:"required,max=200"`
}

// ConflictData identifies the session a login would displace
type ConflictData struct {
	SessionID int64 `json:"sessionId"`
	UserID    int64 `json:"userId"`
}

// UserResponse represents the user data in login responses
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	RoleID   int64  `json:"roleId"`
}

// LoginData is returned after a session has been opened
type LoginData struct {
	User      UserResponse `json:"user"`
	SessionID int64        `json:"sessionId"`
}

// loginResponse always carries hasSession so clients can branch on it
type loginResponse struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	HasSession bool      `json:"hasSession"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuthHandler handles HTTP requests for authentication
type AuthHandler struct {
	service  *Service
	sessions *session.Manager
	render   apperr.Renderer
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(service *Service, sessions *session.Manager, render apperr.Renderer, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, sessions: sessions, render: render, logger: logger}
}

// Login handles user authentication
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.render.Write(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), LoginInput{
		Username: req.Username,
		Password: req.Password,
		IP:       httputil.ClientIP(r),
		Endpoint: r.URL.Path,
	})
	if err != nil {
		h.render.Write(w, r, ToAppError(err))
		return
	}

	if result.Phase == PhaseAwaitingConflictConfirmation {
		h.render.Write(w, r, apperr.Conflict("An active session already exists for this account",
			ConflictData{SessionID: result.SessionID, UserID: result.User.ID}))
		return
	}

	payload := session.Payload{SessionID: result.SessionID, Username: result.User.Username, UserID: result.User.ID}
	if err := h.sessions.Start(r.Context(), w, r, payload); err != nil {
		// The row must not outlive a session the client can never present
		if closeErr := h.service.Logout(context.WithoutCancel(r.Context()), result.SessionID); closeErr != nil {
			h.logger.Error("failed to close orphaned session", "session_id", result.SessionID, "error", closeErr)
		}
		h.render.Write(w, r, apperr.Upstream(err))
		return
	}

	apperr.WriteJSON(w, http.StatusOK, loginResponse{
		Success:    true,
		Message:    "Login successful",
		HasSession: false,
		Data: LoginData{
			User:      UserResponse{ID: result.User.ID, Username: result.User.Username, RoleID: result.User.RoleID},
			SessionID: result.SessionID,
		},
		Timestamp: time.Now().UTC(),
	})
}

// CloseSessionAndLogin displaces the confirmed session. The client then
// repeats the login request to open its own session.
// POST /api/auth/close-session-and-login
func (h *AuthHandler) CloseSessionAndLogin(w http.ResponseWriter, r *http.Request) {
	var req ConflictRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.render.Write(w, r, err)
		return
	}

	phase, err := h.service.ResolveConflict(r.Context(), ConflictInput{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Username:  req.Username,
		Password:  req.Password,
		IP:        httputil.ClientIP(r),
		Endpoint:  r.URL.Path,
	})
	if err != nil {
		h.render.Write(w, r, ToAppError(err))
		return
	}

	apperr.OK(w, http.StatusOK, "Previous session closed, log in again to continue",
		map[string]string{"phase": phase.String()})
}

// Logout closes the current session and always clears the cookie
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, payload, err := h.sessions.Current(r.Context(), r)
	if err != nil {
		h.sessions.ClearCookie(w, r)
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrNoCookie) || errors.Is(err, session.ErrInvalidCookie) {
			h.render.Write(w, r, ToAppError(ErrSessionNotFound))
			return
		}
		h.render.Write(w, r, apperr.Upstream(err))
		return
	}

	logoutErr := h.service.Logout(r.Context(), payload.SessionID)
	if err := h.sessions.End(r.Context(), w, r, token); err != nil {
		h.logger.Warn("failed to drop cached session", "session_id", payload.SessionID, "error", err)
	}
	if logoutErr != nil {
		h.render.Write(w, r, ToAppError(logoutErr))
		return
	}

	apperr.OK(w, http.StatusOK, "Successfully logged out", nil)
}

// ToAppError maps service errors onto the response taxonomy
func ToAppError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return apperr.Authentication("Invalid username or password", err)
	case errors.Is(err, ErrAccountBlocked):
		e := apperr.Authentication("Your account is blocked, contact an administrator", err)
		e.Code = CodeAccountBlocked
		return e
	case errors.Is(err, ErrAccountInactive):
		e := apperr.Authentication("Session expired, log in again", err)
		e.Logout = true
		return e
	case errors.Is(err, ErrSessionNotFound):
		e := apperr.Authentication("Session not found or expired", err)
		e.Code = CodeSessionNotFound
		e.Logout = true
		return e
	case errors.Is(err, ErrSessionMismatch):
		e := apperr.Authentication("Session does not belong to this account", err)
		e.Code = CodeSessionMismatch
		return e
	case errors.Is(err, ErrForbidden):
		return apperr.Forbidden(err)
	default:
		return err
	}
}
