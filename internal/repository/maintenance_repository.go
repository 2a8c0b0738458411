package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// MaintenanceRepository holds the bulk statements run by the janitor
type MaintenanceRepository interface {
	CloseSessionsOlderThan(ctx context.Context, before, at time.Time) (int64, error)
	UnblockUsers(ctx context.Context, blockCode int, blockedBefore time.Time) (int64, error)
	DeleteArticlesBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteProcessedFilesBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteClosedSessionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// MaintenanceRepo implements MaintenanceRepository using PostgreSQL
type MaintenanceRepo struct {
	db *sqlx.DB
}

// NewMaintenanceRepo creates a new MaintenanceRepo instance
func NewMaintenanceRepo(db *sqlx.DB) *MaintenanceRepo {
	return &MaintenanceRepo{db: db}
}

func (r *MaintenanceRepo) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	return n, nil
}

// CloseSessionsOlderThan closes active sessions opened before the cutoff
func (r *MaintenanceRepo) CloseSessionsOlderThan(ctx context.Context, before, at time.Time) (int64, error) {
	return r.exec(ctx, "close stale sessions", `
		UPDATE sessions
		SET is_active = FALSE, logout_date = $2
		WHERE is_active = TRUE AND login_date < $1
	`, before, at)
}

// UnblockUsers reactivates accounts blocked with blockCode before the cutoff
func (r *MaintenanceRepo) UnblockUsers(ctx context.Context, blockCode int, blockedBefore time.Time) (int64, error) {
	return r.exec(ctx, "unblock users", `
		UPDATE users
		SET state = $1, login_attempts = 0, block_code = NULL, blocked_date = NULL, updated_at = NOW()
		WHERE state = $2 AND block_code = $3 AND blocked_date < $4
	`, UserActive, UserBlocked, blockCode, blockedBefore)
}

func (r *MaintenanceRepo) DeleteArticlesBefore(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, "delete old articles", `DELETE FROM articles WHERE created_date < $1`, before)
}

func (r *MaintenanceRepo) DeleteProcessedFilesBefore(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, "delete old processed files", `DELETE FROM processed_files WHERE created_date < $1`, before)
}

// DeleteClosedSessionsBefore removes closed session rows logged out before the cutoff
func (r *MaintenanceRepo) DeleteClosedSessionsBefore(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, "delete old sessions", `
		DELETE FROM sessions
		WHERE is_active = FALSE AND logout_date < $1
	`, before)
}
