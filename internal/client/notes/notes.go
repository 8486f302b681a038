// Package notes maps personal notes onto documents of the "notes"
// collection.
//
// Ownership is not checked here. The store's access rules only let a user
// read, change or delete documents whose userId is their own, so every call
// is issued as-is and a foreign id simply fails with the store's error.
package notes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/studynote/internal/client/store"
	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
)

const (
	fieldTitle     = "title"
	fieldBody      = "body"
	fieldUserID    = "userId"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"

	// read-only, written by earlier versions of the app
	fieldLegacyText = "text"
	legacySeparator = "\n---\n"
)

type Note struct {
	ID        string
	Title     string
	Body      string
	UserID    string
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// Text renders the single-string form: the title and body separated by a
// "---" line, or the body alone when there is no title.
func (n Note) Text() string {
	if n.Title == "" {
		return n.Body
	}
	return n.Title + legacySeparator + n.Body
}

// Content is the user-editable part of a note.
type Content struct {
	Title string
	Body  string
}

// SplitLegacyText splits a legacy text field once on the separator.
func SplitLegacyText(text string) (title, body string) {
	if t, b, ok := strings.Cut(text, legacySeparator); ok {
		return t, b
	}
	return "", text
}

// FromDocument remaps a store document. Missing timestamps stay nil.
func FromDocument(doc docstore.Document) Note {
	n := Note{
		ID:     doc.ID,
		Title:  docstore.String(doc.Fields, fieldTitle),
		Body:   docstore.String(doc.Fields, fieldBody),
		UserID: docstore.String(doc.Fields, fieldUserID),
	}
	if _, ok := doc.Fields[fieldBody]; !ok {
		if text, ok := doc.Fields[fieldLegacyText].(string); ok {
			n.Title, n.Body = SplitLegacyText(text)
		}
	}
	if t, ok := docstore.Time(doc.Fields, fieldCreatedAt); ok {
		n.CreatedAt = &t
	}
	if t, ok := docstore.Time(doc.Fields, fieldUpdatedAt); ok {
		n.UpdatedAt = &t
	}
	return n
}

type DAL struct {
	store store.Store
}

func New(s store.Store) *DAL {
	return &DAL{store: s}
}

// Subscribe delivers the user's notes, in store order, now and after every
// change.
func (d *DAL) Subscribe(userID string, fn func([]Note)) (store.Unsubscribe, error) {
	filter := docstore.Filter{Field: fieldUserID, Value: userID}

	unsubscribe, err := d.store.Listen(common.NotesCollection, filter, func(docs []docstore.Document) {
		list := make([]Note, 0, len(docs))
		for _, doc := range docs {
			list = append(list, FromDocument(doc))
		}
		fn(list)
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() { once.Do(unsubscribe) }, nil
}

func (d *DAL) Create(ctx context.Context, userID string, c Content) error {
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: note body is empty", common.ErrorInvalidArgument)
	}

	_, err := d.store.Add(ctx, common.NotesCollection, map[string]any{
		fieldTitle:     c.Title,
		fieldBody:      c.Body,
		fieldUserID:    userID,
		fieldCreatedAt: docstore.ServerTimestamp,
		fieldUpdatedAt: docstore.ServerTimestamp,
	})
	return err
}

// Update replaces title and body. userId and createdAt are left alone.
func (d *DAL) Update(ctx context.Context, id string, c Content) error {
	return d.store.Update(ctx, common.NotesCollection, id, map[string]any{
		fieldTitle:     c.Title,
		fieldBody:      c.Body,
		fieldUpdatedAt: docstore.ServerTimestamp,
	})
}

func (d *DAL) Delete(ctx context.Context, id string) error {
	return d.store.Delete(ctx, common.NotesCollection, id)
}
