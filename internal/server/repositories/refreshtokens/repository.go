// Package refreshtokens persists refresh tokens by digest.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/studynote/internal/server/models"
)

type Repository interface {
	// Create stores digest for userID, expiring at now+validity.
	Create(ctx context.Context, userID string, digest string, validity time.Duration) error

	// Find returns common.ErrorNotFound when the digest is unknown.
	Find(ctx context.Context, digest string) (*models.RefreshToken, error)

	// Delete is a no-op for unknown digests.
	Delete(ctx context.Context, digest string) error

	// DeleteExpired removes every token that expired before now and reports
	// how many rows went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
