package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleRepository answers role/menu grant questions
type RoleRepository interface {
	HasMenu(ctx context.Context, roleID int64, menuID int) (bool, error)
}

type roleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository creates a new RoleRepository instance
func NewRoleRepository(pool *pgxpool.Pool) RoleRepository {
	return &roleRepository{pool: pool}
}

// HasMenu reports whether a grant row links the role to the menu
func (r *roleRepository) HasMenu(ctx context.Context, roleID int64, menuID int) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM role_menus WHERE role_id = $1 AND menu_id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, roleID, menuID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
