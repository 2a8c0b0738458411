package users

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/auth"
	appctx "github.com/codec-agences/admin-backend/internal/context"
	"github.com/codec-agences/admin-backend/internal/httputil"
	"github.com/codec-agences/admin-backend/internal/repository"
)

// StateRequest represents the state change payload
type StateRequest struct {
	State *int `json:"state" validate:"required,min=0,max=3"`
}

// ResetPasswordRequest represents the password reset payload
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,max=72"`
}

// Handler handles HTTP requests for user administration
type Handler struct {
	service *Service
	render  apperr.Renderer
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, render apperr.Renderer) *Handler {
	return &Handler{service: service, render: render}
}

// UpdateState handles PUT /api/users/{id}/state
func (h *Handler) UpdateState(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "id")
	if err != nil {
		h.render.Write(w, r, err)
		return
	}
	var req StateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.render.Write(w, r, err)
		return
	}

	actorID, _ := appctx.ExtractUserID(r.Context())
	result, err := h.service.ChangeState(r.Context(), actorID, targetID, repository.UserState(*req.State))
	if err != nil {
		h.render.Write(w, r, toAppError(err))
		return
	}
	apperr.OK(w, http.StatusOK, "User state updated", result)
}

// ResetPassword handles POST /api/users/{id}/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "id")
	if err != nil {
		h.render.Write(w, r, err)
		return
	}
	var req ResetPasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.render.Write(w, r, err)
		return
	}

	actorID, _ := appctx.ExtractUserID(r.Context())
	result, problems, err := h.service.ResetPassword(r.Context(), actorID, targetID, req.Password, httputil.ClientIP(r))
	if err != nil {
		if errors.Is(err, ErrWeakPassword) {
			details := make(map[string][]string)
			for _, p := range problems {
				details[p.Field] = append(details[p.Field], p.Message)
			}
			h.render.Write(w, r, apperr.Validation("Password does not meet complexity requirements", details))
			return
		}
		h.render.Write(w, r, toAppError(err))
		return
	}
	apperr.OK(w, http.StatusOK, "Password reset", result)
}

// ClearSession handles DELETE /api/sessions/{id}
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		h.render.Write(w, r, err)
		return
	}

	actorID, _ := appctx.ExtractUserID(r.Context())
	username, err := h.service.ClearSession(r.Context(), actorID, sessionID)
	if err != nil {
		h.render.Write(w, r, toAppError(err))
		return
	}
	apperr.OK(w, http.StatusOK, "Session closed", map[string]any{"sessionId": sessionID, "username": username})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("Invalid id", map[string][]string{name: {name + " must be a positive integer"}})
	}
	return id, nil
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return apperr.NotFound("User not found", err)
	case errors.Is(err, ErrInvalidState):
		return apperr.Validation("Invalid user state", map[string][]string{"state": {"state must be one of 0 1 2 3"}})
	case errors.Is(err, ErrSelfChange):
		return apperr.Forbidden(err)
	case errors.Is(err, auth.ErrSessionNotFound):
		return apperr.NotFound("Session not found", err)
	default:
		return err
	}
}
