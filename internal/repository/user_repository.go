package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors
var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetLoginAttempts(ctx context.Context, id int64, attempts int) error
	Block(ctx context.Context, id int64, code int, at time.Time) error
	UpdateState(ctx context.Context, id int64, state UserState) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// userRepository implements UserRepository using PostgreSQL
type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, email, password_hash, state, login_attempts,
	block_code, blocked_date, role_id, service_id, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.State,
		&user.LoginAttempts,
		&user.BlockCode,
		&user.BlockedDate,
		&user.RoleID,
		&user.ServiceID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername retrieves a user by exact username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

// SetLoginAttempts overwrites the failed-attempt counter
func (r *userRepository) SetLoginAttempts(ctx context.Context, id int64, attempts int) error {
	query := `UPDATE users SET login_attempts = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, id, attempts)
}

// Block moves the account to the blocked state with the given reason code
func (r *userRepository) Block(ctx context.Context, id int64, code int, at time.Time) error {
	query := `
		UPDATE users
		SET state = $2, block_code = $3, blocked_date = $4, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, UserBlocked, code, at)
}

// UpdateState sets the account state and resets the attempt counter. Leaving
// the blocked state clears the block reason.
func (r *userRepository) UpdateState(ctx context.Context, id int64, state UserState) error {
	query := `
		UPDATE users
		SET state = $2,
			login_attempts = 0,
			block_code = CASE WHEN $2 = 2 THEN COALESCE(block_code, $3) ELSE NULL END,
			blocked_date = CASE WHEN $2 = 2 THEN COALESCE(blocked_date, NOW()) ELSE NULL END,
			updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, state, BlockCodeAdministrative)
}

// UpdatePassword stores a new hash and resets the attempt counter
func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, login_attempts = 0, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, id, passwordHash)
}

func (r *userRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
