package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/dbx"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/server/livequery"
	"github.com/dmitrijs2005/studynote/internal/server/models"
	"github.com/dmitrijs2005/studynote/internal/server/repositories/documents"
	"github.com/dmitrijs2005/studynote/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/studynote/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	mu        sync.Mutex
	byEmail   map[string]*models.User
	createErr error
	getErr    error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byEmail: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	u.ID = "user-" + u.Email
	u.CreatedAt = time.Now()
	f.byEmail[u.Email] = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeRefreshRepo struct {
	mu        sync.Mutex
	tokens    map[string]*models.RefreshToken
	createErr error
	findErr   error
	delErr    error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID, digest string, validity time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[digest] = &models.RefreshToken{UserID: userID, Digest: digest, Expires: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, digest string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	t, ok := f.tokens[digest]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, digest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.tokens, digest)
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.tokens {
		if t.Expires.Before(now) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

// fakeDocsRepo keeps documents in memory, in insertion order.
type fakeDocsRepo struct {
	mu       sync.Mutex
	docs     []*models.Document
	queryErr error
}

func (f *fakeDocsRepo) find(collection, id string) int {
	for i, d := range f.docs {
		if d.Collection == collection && d.ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeDocsRepo) Insert(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeDocsRepo) GetForUpdate(_ context.Context, collection, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(collection, id)
	if i < 0 {
		return nil, common.ErrorNotFound
	}
	cp := *f.docs[i]
	return &cp, nil
}

func (f *fakeDocsRepo) Replace(_ context.Context, collection, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(collection, id)
	if i < 0 {
		return common.ErrorNotFound
	}
	f.docs[i].Fields = fields
	return nil
}

func (f *fakeDocsRepo) Delete(_ context.Context, collection, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(collection, id)
	if i < 0 {
		return false, nil
	}
	f.docs = append(f.docs[:i], f.docs[i+1:]...)
	return true, nil
}

func (f *fakeDocsRepo) Query(_ context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := []docstore.Document{}
	for _, d := range f.docs {
		if d.Collection == collection && filter.Matches(d.Fields) {
			out = append(out, docstore.Document{ID: d.ID, Fields: d.Fields})
		}
	}
	return out, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	d *fakeDocsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(), r: newFakeRefreshRepo(), d: &fakeDocsRepo{}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.r }
func (m *fakeRepoManager) Documents(dbx.DBTX) documents.Repository         { return m.d }

// recordingPublisher captures published changes and can fail on demand.
type recordingPublisher struct {
	mu      sync.Mutex
	changes []livequery.Change
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, c livequery.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) published() []livequery.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]livequery.Change(nil), p.changes...)
}

var errExport = errors.New("export-fail")

type fakeExporter struct {
	userID string
	body   []byte
	url    string
	err    error
}

func (e *fakeExporter) Export(_ context.Context, userID string, body []byte) (string, error) {
	e.userID, e.body = userID, body
	if e.err != nil {
		return "", e.err
	}
	return e.url, nil
}
