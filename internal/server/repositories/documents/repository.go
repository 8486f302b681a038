// Package documents persists schemaless documents grouped by collection.
// Fields are stored as JSONB using the docstore tagged encoding.
package documents

import (
	"context"

	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, doc *models.Document) error

	// GetForUpdate loads a document and locks its row for the rest of the
	// transaction. Unknown ids yield common.ErrorNotFound.
	GetForUpdate(ctx context.Context, collection, id string) (*models.Document, error)

	// Replace overwrites all fields. Unknown ids yield common.ErrorNotFound.
	Replace(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete reports whether a row was removed.
	Delete(ctx context.Context, collection, id string) (bool, error)

	// Query returns matching documents in insertion order.
	Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error)
}
