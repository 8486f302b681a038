// Package session persists the signed-in session of the CLI so it survives
// restarts. Values live in the key/value metadata table.
package session

import "context"

// Session is what the CLI needs to resume without asking for a password.
type Session struct {
	UserID       string
	Email        string
	RefreshToken string
}

type Repository interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}
