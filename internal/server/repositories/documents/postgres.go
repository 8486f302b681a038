package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/dbx"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, doc *models.Document) error {
	raw, err := docstore.MarshalJSON(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	query := `
		INSERT INTO documents (id, collection, fields)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`
	if err := r.db.QueryRowContext(ctx, query, doc.ID, doc.Collection, raw).Scan(&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// validID reports whether id can name a row; ids are UUIDs.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, collection, id string) (*models.Document, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	query := `
		SELECT id, collection, fields, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
		FOR UPDATE`

	var raw []byte
	doc := &models.Document{}
	err := r.db.QueryRowContext(ctx, query, collection, id).
		Scan(&doc.ID, &doc.Collection, &raw, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if doc.Fields, err = docstore.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, nil
}

func (r *PostgresRepository) Replace(ctx context.Context, collection, id string, fields map[string]any) error {
	if !validID(id) {
		return common.ErrorNotFound
	}
	raw, err := docstore.MarshalJSON(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	query := `
		UPDATE documents SET fields = $3, updated_at = now()
		WHERE collection = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, collection, id, raw)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, collection, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	query := `
		SELECT id, fields FROM documents
		WHERE collection = $1 AND fields ->> $2 = $3
		ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query, collection, filter.Field, filter.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	result := make([]docstore.Document, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		fields, err := docstore.UnmarshalJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		result = append(result, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
