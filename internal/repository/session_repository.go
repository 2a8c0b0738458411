package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id int64) (*Session, error)
	// FindActive returns the most recent active session of the user opened at or after since
	FindActive(ctx context.Context, userID int64, since time.Time) (*Session, error)
	Close(ctx context.Context, id int64, at time.Time) error
	CloseActiveForUser(ctx context.Context, userID int64, since, at time.Time) (int64, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

// Create inserts an active session and fills in its id and login date
func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (user_id, ip_address, is_active, login_date)
		VALUES ($1, $2, TRUE, NOW())
		RETURNING session_id, login_date
	`

	err := r.pool.QueryRow(ctx, query, session.UserID, session.IPAddress).
		Scan(&session.ID, &session.LoginDate)
	if err != nil {
		return err
	}

	session.IsActive = true
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.IPAddress,
		&session.IsActive,
		&session.LoginDate,
		&session.LogoutDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// GetByID retrieves a session by its id
func (r *sessionRepository) GetByID(ctx context.Context, id int64) (*Session, error) {
	query := `
		SELECT session_id, user_id, ip_address, is_active, login_date, logout_date
		FROM sessions
		WHERE session_id = $1
	`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

func (r *sessionRepository) FindActive(ctx context.Context, userID int64, since time.Time) (*Session, error) {
	query := `
		SELECT session_id, user_id, ip_address, is_active, login_date, logout_date
		FROM sessions
		WHERE user_id = $1 AND is_active = TRUE AND login_date >= $2
		ORDER BY login_date DESC
		LIMIT 1
	`
	return scanSession(r.pool.QueryRow(ctx, query, userID, since))
}

// Close marks a session inactive. Closing an already closed session keeps
// its original logout date.
func (r *sessionRepository) Close(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE sessions
		SET is_active = FALSE, logout_date = COALESCE(logout_date, $2)
		WHERE session_id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CloseActiveForUser closes every active session of the user opened at or after since
func (r *sessionRepository) CloseActiveForUser(ctx context.Context, userID int64, since, at time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE, logout_date = $3
		WHERE user_id = $1 AND is_active = TRUE AND login_date >= $2
	`

	result, err := r.pool.Exec(ctx, query, userID, since, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
