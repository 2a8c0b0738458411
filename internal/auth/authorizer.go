package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/codec-agences/admin-backend/internal/repository"
)

// Authorizer checks role/menu grants
type Authorizer struct {
	users repository.UserRepository
	roles repository.RoleRepository
}

// NewAuthorizer creates a new Authorizer instance
func NewAuthorizer(users repository.UserRepository, roles repository.RoleRepository) *Authorizer {
	return &Authorizer{users: users, roles: roles}
}

// Authorize returns ErrForbidden unless the user is Active and the user's
// role holds a grant for menuID
func (a *Authorizer) Authorize(ctx context.Context, userID int64, menuID int) error {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.State != repository.UserActive {
		return ErrForbidden
	}

	granted, err := a.roles.HasMenu(ctx, user.RoleID, menuID)
	if err != nil {
		return fmt.Errorf("failed to check menu grant: %w", err)
	}
	if !granted {
		return ErrForbidden
	}
	return nil
}
