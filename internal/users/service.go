// Package users holds the administrative account operations. Every change
// that affects who may log in also closes the target's open sessions.
package users

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/codec-agences/admin-backend/internal/auth"
	"github.com/codec-agences/admin-backend/internal/notify"
	"github.com/codec-agences/admin-backend/internal/repository"
	"github.com/codec-agences/admin-backend/internal/threat"
)

// User service errors
var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidState = errors.New("invalid user state")
	ErrSelfChange   = errors.New("administrators cannot change their own account state")
	ErrWeakPassword = errors.New("password does not meet complexity requirements")
)

// SessionTerminator closes a user's open sessions
type SessionTerminator interface {
	ForceLogoutOtherSessions(ctx context.Context, userID int64) (int64, error)
	AdminClearSession(ctx context.Context, sessionID int64) (string, error)
}

// PasswordPolicy checks and hashes new passwords
type PasswordPolicy interface {
	ValidatePassword(password string) []auth.PasswordValidationError
	HashPassword(password string) (string, error)
}

// Notifier receives advisory alerts
type Notifier interface {
	Notify(alert notify.Alert)
}

// ChangeResult reports the effect of an administrative change
type ChangeResult struct {
	UserID         int64                `json:"userId"`
	Username       string               `json:"username"`
	State          repository.UserState `json:"state"`
	ClosedSessions int64                `json:"closedSessions"`
}

// Service implements the administrative user operations
type Service struct {
	users     repository.UserRepository
	sessions  SessionTerminator
	passwords PasswordPolicy
	patterns  threat.PatternSet
	alerts    Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new Service instance
func NewService(users repository.UserRepository, sessions SessionTerminator, passwords PasswordPolicy, alerts Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		patterns:  threat.DefaultPatterns(),
		alerts:    alerts,
		logger:    logger,
		now:       time.Now,
	}
}

// ChangeState moves the target account to state, resets its attempt
// counter and logs it out everywhere
func (s *Service) ChangeState(ctx context.Context, actorID, targetID int64, state repository.UserState) (*ChangeResult, error) {
	if !state.Valid() {
		return nil, ErrInvalidState
	}
	if actorID == targetID {
		return nil, ErrSelfChange
	}

	user, err := s.lookup(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateState(ctx, targetID, state); err != nil {
		return nil, fmt.Errorf("failed to update user state: %w", err)
	}

	closed, err := s.sessions.ForceLogoutOtherSessions(ctx, targetID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user state changed",
		"actor_id", actorID,
		"user_id", targetID,
		"from", user.State.String(),
		"to", state.String(),
		"closed_sessions", closed,
	)
	return &ChangeResult{UserID: targetID, Username: user.Username, State: state, ClosedSessions: closed}, nil
}

// ResetPassword sets a new password for the target, logs it out everywhere
// and notifies the administrators. A password the login threat guard would
// reject is refused here as well.
func (s *Service) ResetPassword(ctx context.Context, actorID, targetID int64, password, ip string) (*ChangeResult, []auth.PasswordValidationError, error) {
	problems := s.passwords.ValidatePassword(password)
	if report := threat.ScanStrings(s.patterns, map[string]string{"password": password}); !report.Empty() {
		problems = append(problems, auth.PasswordValidationError{
			Field:   "password",
			Message: "Password contains characters the login form rejects",
		})
	}
	if len(problems) > 0 {
		return nil, problems, ErrWeakPassword
	}

	user, err := s.lookup(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, targetID, hash); err != nil {
		return nil, nil, fmt.Errorf("failed to update password: %w", err)
	}

	closed, err := s.sessions.ForceLogoutOtherSessions(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("password reset", "actor_id", actorID, "user_id", targetID, "closed_sessions", closed)
	if s.alerts != nil {
		s.alerts.Notify(notify.Alert{
			Time:     s.now(),
			IP:       ip,
			Endpoint: fmt.Sprintf("/api/users/%d/reset-password", targetID),
			Subject:  "Password reset",
			Message:  fmt.Sprintf("<p>The password of <strong>%s</strong> was reset by an administrator.</p>", html.EscapeString(user.Username)),
		})
	}
	return &ChangeResult{UserID: targetID, Username: user.Username, State: user.State, ClosedSessions: closed}, nil, nil
}

// ClearSession closes one session on behalf of an administrator
func (s *Service) ClearSession(ctx context.Context, actorID, sessionID int64) (string, error) {
	username, err := s.sessions.AdminClearSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	s.logger.Info("session cleared by administrator", "actor_id", actorID, "session_id", sessionID, "username", username)
	return username, nil
}

func (s *Service) lookup(ctx context.Context, id int64) (*repository.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
