package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/dbx"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/logging"
	"github.com/dmitrijs2005/studynote/internal/server/livequery"
	"github.com/dmitrijs2005/studynote/internal/server/models"
	"github.com/dmitrijs2005/studynote/internal/server/repositories/repomanager"
)

// Subscriber registers live queries.
type Subscriber interface {
	Subscribe(collection string, filter docstore.Filter) (*livequery.Subscription, func())
}

// DocumentService applies access rules to document reads and writes and
// announces every committed write to live queries.
type DocumentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	rules       Rules
	subscriber  Subscriber
	exporter    Exporter
	logger      logging.Logger
	now         func() time.Time

	// publisher binds a change publisher to the write transaction, so the
	// announcement only goes out if the write commits.
	publisher func(db dbx.DBTX) livequery.Publisher
}

func NewDocumentService(db *sql.DB, m repomanager.RepositoryManager, subscriber Subscriber, exporter Exporter, logger logging.Logger) *DocumentService {
	return &DocumentService{
		db:          db,
		repomanager: m,
		rules:       DefaultRules(),
		subscriber:  subscriber,
		exporter:    exporter,
		logger:      logger,
		now:         time.Now,
		publisher: func(db dbx.DBTX) livequery.Publisher {
			return livequery.NewPostgresPublisher(db)
		},
	}
}

// Add stores a new document and returns its generated id.
func (s *DocumentService) Add(ctx context.Context, userID, collection string, fields map[string]any) (string, error) {
	if err := s.rules.CanCreate(userID, collection, fields); err != nil {
		return "", err
	}

	doc := &models.Document{
		ID:         uuid.NewString(),
		Collection: collection,
		Fields:     maps.Clone(fields),
	}
	docstore.ResolveServerTimestamps(doc.Fields, s.now().UTC())

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Documents(tx).Insert(ctx, doc); err != nil {
			return fmt.Errorf("error inserting document: %w", err)
		}
		return s.publish(ctx, tx, collection, doc.Fields)
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug(ctx, "document added", "collection", collection, "id", doc.ID, "user_id", userID)
	return doc.ID, nil
}

// Update merges patch into the top-level fields of an existing document.
func (s *DocumentService) Update(ctx context.Context, userID, collection, id string, patch map[string]any) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Documents(tx)

		doc, err := repo.GetForUpdate(ctx, collection, id)
		if err != nil {
			return err
		}
		if err := s.rules.CanModify(userID, collection, doc.Fields, patch); err != nil {
			return err
		}

		merged := maps.Clone(doc.Fields)
		if merged == nil {
			merged = make(map[string]any, len(patch))
		}
		maps.Copy(merged, patch)
		docstore.ResolveServerTimestamps(merged, s.now().UTC())

		if err := repo.Replace(ctx, collection, id, merged); err != nil {
			return err
		}
		return s.publish(ctx, tx, collection, merged)
	})
	if err != nil {
		return err
	}

	s.logger.Debug(ctx, "document updated", "collection", collection, "id", id, "user_id", userID)
	return nil
}

// Delete removes a document. Deleting a document that does not exist is not
// an error.
func (s *DocumentService) Delete(ctx context.Context, userID, collection, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Documents(tx)

		doc, err := repo.GetForUpdate(ctx, collection, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		if err := s.rules.CanModify(userID, collection, doc.Fields, nil); err != nil {
			return err
		}

		removed, err := repo.Delete(ctx, collection, id)
		if err != nil {
			return fmt.Errorf("error deleting document: %w", err)
		}
		if !removed {
			return nil
		}
		return s.publish(ctx, tx, collection, doc.Fields)
	})
}

// Query returns the caller's documents matching filter in insertion order.
func (s *DocumentService) Query(ctx context.Context, userID, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := s.rules.CanRead(userID, collection, filter); err != nil {
		return nil, err
	}
	return s.repomanager.Documents(s.db).Query(ctx, collection, filter)
}

// Subscribe opens a live query. The caller runs Query after each signal on
// the subscription and must call cancel when done.
func (s *DocumentService) Subscribe(userID, collection string, filter docstore.Filter) (*livequery.Subscription, func(), error) {
	if err := s.rules.CanRead(userID, collection, filter); err != nil {
		return nil, nil, err
	}
	sub, cancel := s.subscriber.Subscribe(collection, filter)
	return sub, cancel, nil
}

// Export uploads the query result as JSON and returns a temporary download
// URL.
func (s *DocumentService) Export(ctx context.Context, userID, collection string, filter docstore.Filter) (string, error) {
	docs, err := s.Query(ctx, userID, collection, filter)
	if err != nil {
		return "", err
	}

	list, err := docstore.EncodeDocuments(docs)
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	body, err := protojson.MarshalOptions{Multiline: true}.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	url, err := s.exporter.Export(ctx, userID, body)
	if err != nil {
		return "", fmt.Errorf("error exporting documents: %w", err)
	}

	s.logger.Info(ctx, "documents exported", "collection", collection, "count", len(docs), "user_id", userID)
	return url, nil
}

func (s *DocumentService) publish(ctx context.Context, tx dbx.DBTX, collection string, fields map[string]any) error {
	change := livequery.Change{Collection: collection, Keys: s.rules.ChangeKeys(collection, fields)}
	if err := s.publisher(tx).Publish(ctx, change); err != nil {
		return fmt.Errorf("error publishing change: %w", err)
	}
	return nil
}
