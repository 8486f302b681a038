// Package users persists user accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/studynote/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills its ID and CreatedAt. A duplicate email
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetUserByEmail returns common.ErrorNotFound for unknown addresses.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}
