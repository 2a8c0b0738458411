package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/codec-agences/admin-backend/internal/metrics"
	"github.com/codec-agences/admin-backend/internal/notify"
	"github.com/codec-agences/admin-backend/internal/repository"
)

// Auth service errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrAccountInactive    = errors.New("account is not active")
	ErrSessionNotFound    = errors.New("session not found or no longer active")
	ErrSessionMismatch    = errors.New("session does not belong to this account")
	ErrForbidden          = errors.New("forbidden")
)

// Brute force protection constants
const (
	MaxFailedAttempts = 5
	// ActiveSessionWindow bounds how far back an unclosed session still counts as active
	ActiveSessionWindow = 24 * time.Hour
)

// Phase is the position of a login inside the takeover handshake
type Phase int

const (
	PhaseAwaitingConflictConfirmation Phase = iota + 1
	PhaseResolved
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingConflictConfirmation:
		return "awaiting_conflict_confirmation"
	case PhaseResolved:
		return "resolved"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginInput carries one login attempt
type LoginInput struct {
	Username string
	Password string
	IP       string
	Endpoint string
}

// LoginResult is the outcome of a successful credential check. When Phase is
// PhaseAwaitingConflictConfirmation, SessionID names the existing session.
type LoginResult struct {
	Phase     Phase
	User      *repository.User
	SessionID int64
}

// ConflictInput re-proves credentials for the session being displaced
type ConflictInput struct {
	SessionID int64
	UserID    int64
	Username  string
	Password  string
	IP        string
	Endpoint  string
}

// Notifier receives advisory alerts
type Notifier interface {
	Notify(alert notify.Alert)
}

// Service drives the login state machine over the user and session stores
type Service struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	passwords *PasswordValidator
	alerts    Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new Service instance
func NewService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	passwords *PasswordValidator,
	alerts Notifier,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		alerts:    alerts,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Login checks credentials and either opens a session or reports the
// existing one for the caller to confirm displacing
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := s.checkCredentials(ctx, in.Username, in.Password, in.IP, in.Endpoint)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active, err := s.sessions.FindActive(ctx, user.ID, now.Add(-ActiveSessionWindow))
	switch {
	case err == nil:
		metrics.LoginOutcomes.WithLabelValues("conflict").Inc()
		return &LoginResult{Phase: PhaseAwaitingConflictConfirmation, User: user, SessionID: active.ID}, nil
	case !errors.Is(err, repository.ErrSessionNotFound):
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}

	sess := &repository.Session{UserID: user.ID, IPAddress: in.IP}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	metrics.LoginOutcomes.WithLabelValues("success").Inc()
	s.logger.Info("user logged in", "user_id", user.ID, "session_id", sess.ID, "ip", in.IP)
	return &LoginResult{Phase: PhaseAuthenticated, User: user, SessionID: sess.ID}, nil
}

// ResolveConflict closes the session named in the input after re-checking the
// account and password. The caller logs in again to open the new session.
func (s *Service) ResolveConflict(ctx context.Context, in ConflictInput) (Phase, error) {
	user, err := s.checkCredentials(ctx, in.Username, in.Password, in.IP, in.Endpoint)
	if err != nil {
		return 0, err
	}
	if user.ID != in.UserID {
		return 0, ErrSessionMismatch
	}

	sess, err := s.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("failed to get session: %w", err)
	}
	if sess.UserID != user.ID {
		return 0, ErrSessionMismatch
	}
	if !sess.IsActive {
		return 0, ErrSessionNotFound
	}

	if err := s.sessions.Close(ctx, sess.ID, s.now()); err != nil {
		return 0, fmt.Errorf("failed to close session: %w", err)
	}

	s.logger.Info("displaced active session", "user_id", user.ID, "session_id", sess.ID, "ip", in.IP)
	return PhaseResolved, nil
}

// Logout closes the session. A zero or unknown id fails with ErrSessionNotFound.
func (s *Service) Logout(ctx context.Context, sessionID int64) error {
	if sessionID <= 0 {
		return ErrSessionNotFound
	}
	if err := s.sessions.Close(ctx, sessionID, s.now()); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// ForceLogoutOtherSessions closes every session the user holds inside the
// active window and returns how many were closed
func (s *Service) ForceLogoutOtherSessions(ctx context.Context, userID int64) (int64, error) {
	now := s.now()
	closed, err := s.sessions.CloseActiveForUser(ctx, userID, now.Add(-ActiveSessionWindow), now)
	if err != nil {
		return 0, fmt.Errorf("failed to close user sessions: %w", err)
	}
	if closed > 0 {
		s.logger.Info("forced logout", "user_id", userID, "sessions", closed)
	}
	return closed, nil
}

// AdminClearSession closes a session without any credential check and
// returns the username it belonged to
func (s *Service) AdminClearSession(ctx context.Context, sessionID int64) (string, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	if err := s.sessions.Close(ctx, sess.ID, s.now()); err != nil {
		return "", fmt.Errorf("failed to close session: %w", err)
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to get session owner: %w", err)
	}
	return user.Username, nil
}

// CheckLiveness verifies that the session exists, is open, belongs to the
// user, and that the user is still Active
func (s *Service) CheckLiveness(ctx context.Context, userID, sessionID int64) (*repository.User, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !sess.IsActive || sess.UserID != userID {
		return nil, ErrSessionNotFound
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrAccountInactive
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.State != repository.UserActive {
		return nil, ErrAccountInactive
	}
	return user, nil
}

// checkCredentials validates account state and password. Failures count
// toward blocking; a success clears the counter.
func (s *Service) checkCredentials(ctx context.Context, username, password, ip, endpoint string) (*repository.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.passwords.burn(password)
			metrics.LoginOutcomes.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	switch user.State {
	case repository.UserActive:
	case repository.UserBlocked:
		metrics.LoginOutcomes.WithLabelValues("blocked").Inc()
		return nil, ErrAccountBlocked
	default:
		s.passwords.burn(password)
		metrics.LoginOutcomes.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	if err := s.passwords.VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, s.recordFailure(ctx, user, ip, endpoint)
	}

	if user.LoginAttempts != 0 {
		if err := s.users.SetLoginAttempts(ctx, user.ID, 0); err != nil {
			return nil, fmt.Errorf("failed to reset login attempts: %w", err)
		}
		user.LoginAttempts = 0
	}
	return user, nil
}

func (s *Service) recordFailure(ctx context.Context, user *repository.User, ip, endpoint string) error {
	attempts := user.LoginAttempts + 1
	if err := s.users.SetLoginAttempts(ctx, user.ID, attempts); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	user.LoginAttempts = attempts

	if attempts < MaxFailedAttempts {
		metrics.LoginOutcomes.WithLabelValues("invalid").Inc()
		return ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.Block(ctx, user.ID, repository.BlockCodeAttemptsExceeded, now); err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	user.State = repository.UserBlocked

	s.logger.Warn("account blocked after failed attempts", "user_id", user.ID, "attempts", attempts, "ip", ip)
	metrics.LoginOutcomes.WithLabelValues("blocked").Inc()
	if s.alerts != nil {
		s.alerts.Notify(notify.Alert{
			Time:     now,
			IP:       ip,
			Endpoint: endpoint,
			Subject:  "Account blocked",
			Message: fmt.Sprintf("<p>The account <strong>%s</strong> was blocked after %d failed login attempts.</p>",
				html.EscapeString(user.Username), attempts),
		})
	}
	return ErrAccountBlocked
}
