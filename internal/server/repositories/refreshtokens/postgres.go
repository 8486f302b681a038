package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/dbx"
	"github.com/dmitrijs2005/studynote/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var now = time.Now

func (r *PostgresRepository) Create(ctx context.Context, userID string, digest string, validity time.Duration) error {
	query := `
		INSERT INTO refresh_tokens (user_id, digest, expires_at)
		VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, userID, digest, now().Add(validity)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, digest string) (*models.RefreshToken, error) {
	query := `
		SELECT user_id, digest, expires_at
		FROM refresh_tokens
		WHERE digest = $1`
	t := &models.RefreshToken{}
	if err := r.db.QueryRowContext(ctx, query, digest).Scan(&t.UserID, &t.Digest, &t.Expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, digest string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE digest = $1`, digest); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
