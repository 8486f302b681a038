package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/studynote/internal/dbx"
)

const (
	keyUserID       = "session.user_id"
	keyEmail        = "session.email"
	keyRefreshToken = "session.refresh_token"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func get(ctx context.Context, db dbx.DBTX, key string) (string, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return string(value), nil
}

func set(ctx context.Context, db dbx.DBTX, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, []byte(value))
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context) (*Session, error) {
	return dbx.WithTxValue(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Session, error) {
		var s Session
		var err error
		if s.UserID, err = get(ctx, tx, keyUserID); err != nil {
			return nil, err
		}
		if s.UserID == "" {
			return nil, nil
		}
		if s.Email, err = get(ctx, tx, keyEmail); err != nil {
			return nil, err
		}
		if s.RefreshToken, err = get(ctx, tx, keyRefreshToken); err != nil {
			return nil, err
		}
		return &s, nil
	})
}

// Save replaces the stored session atomically.
func (r *SQLiteRepository) Save(ctx context.Context, s Session) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := set(ctx, tx, keyUserID, s.UserID); err != nil {
			return err
		}
		if err := set(ctx, tx, keyEmail, s.Email); err != nil {
			return err
		}
		return set(ctx, tx, keyRefreshToken, s.RefreshToken)
	})
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key IN (?, ?, ?)`, keyUserID, keyEmail, keyRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
