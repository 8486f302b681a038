package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/logging"
	"github.com/dmitrijs2005/studynote/internal/rpc"
	"github.com/dmitrijs2005/studynote/internal/server/auth"
	"github.com/dmitrijs2005/studynote/internal/server/livequery"
	"github.com/dmitrijs2005/studynote/internal/server/services"
)

const testSecret = "secret"

type fakeUsers struct {
	signInErr error
	signedOut string
}

func (f *fakeUsers) SignUp(ctx context.Context, email, password string) (*services.Session, error) {
	if password == "bad" {
		return nil, common.NewAuthError(common.CodeWeakPassword)
	}
	return &services.Session{UserID: "u1", Email: email, AccessToken: "at", RefreshToken: "rt"}, nil
}

func (f *fakeUsers) SignIn(ctx context.Context, email, password string) (*services.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &services.Session{UserID: "u1", Email: email, AccessToken: "at", RefreshToken: "rt"}, nil
}

func (f *fakeUsers) RefreshToken(ctx context.Context, refreshToken string) (*services.Session, error) {
	if refreshToken != "rt" {
		return nil, common.ErrInvalidToken
	}
	return &services.Session{UserID: "u1", AccessToken: "at2", RefreshToken: "rt2"}, nil
}

func (f *fakeUsers) SignOut(ctx context.Context, refreshToken string) error {
	f.signedOut = refreshToken
	return nil
}

// fakeDocuments is an in-memory store that owns documents by "userId" and
// announces writes through a real hub.
type fakeDocuments struct {
	mu   sync.Mutex
	hub  *livequery.Hub
	docs []docstore.Document
	next int
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{hub: livequery.NewHub()}
}

func (f *fakeDocuments) Add(ctx context.Context, userID, collection string, fields map[string]any) (string, error) {
	if docstore.String(fields, "userId") != userID {
		return "", common.ErrorPermissionDenied
	}
	f.mu.Lock()
	f.next++
	id := fmt.Sprintf("doc-%d", f.next)
	f.docs = append(f.docs, docstore.Document{ID: id, Fields: fields})
	f.mu.Unlock()
	return id, f.hub.Publish(ctx, livequery.Change{Collection: collection, Keys: map[string]string{"userId": userID}})
}

func (f *fakeDocuments) Update(ctx context.Context, userID, collection, id string, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ID == id {
			for k, v := range patch {
				d.Fields[k] = v
			}
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeDocuments) Delete(ctx context.Context, userID, collection, id string) error {
	return nil
}

func (f *fakeDocuments) Query(ctx context.Context, userID, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []docstore.Document{}
	for _, d := range f.docs {
		if filter.Matches(d.Fields) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) Subscribe(userID, collection string, filter docstore.Filter) (*livequery.Subscription, func(), error) {
	if filter.Value != userID {
		return nil, nil, common.ErrorPermissionDenied
	}
	sub, cancel := f.hub.Subscribe(collection, filter)
	return sub, cancel, nil
}

func (f *fakeDocuments) Export(ctx context.Context, userID, collection string, filter docstore.Filter) (string, error) {
	return "http://minio/exports/" + userID, nil
}

type harness struct {
	users *fakeUsers
	docs  *fakeDocuments
	auth  rpc.AuthClient
	store rpc.DocumentsClient
}

func startServer(t *testing.T) *harness {
	t.Helper()
	h := &harness{users: &fakeUsers{}, docs: newFakeDocuments()}
	s := NewGRPCServer("bufnet", logging.Discard(), h.users, h.docs, testSecret)

	lis := bufconn.Listen(1 << 20)
	srv := s.NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	h.auth = rpc.NewAuthClient(conn)
	h.store = rpc.NewDocumentsClient(conn)
	return h
}

func withToken(t *testing.T, userID string) context.Context {
	t.Helper()
	token, err := auth.GenerateToken(userID, []byte(testSecret), time.Minute)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, token)
}

func TestAuthService(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	resp, err := h.auth.SignUp(ctx, rpc.Credentials{Email: "a@b.c", Password: "secret1"}.Encode())
	require.NoError(t, err)
	sess, err := rpc.DecodeSession(resp)
	require.NoError(t, err)
	assert.Equal(t, rpc.Session{UserID: "u1", Email: "a@b.c", AccessToken: "at", RefreshToken: "rt"}, sess)

	_, err = h.auth.SignUp(ctx, rpc.Credentials{Email: "a@b.c", Password: "bad"}.Encode())
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, string(common.CodeWeakPassword), status.Convert(err).Message())

	resp, err = h.auth.RefreshToken(ctx, rpc.RefreshTokenRequest("rt"))
	require.NoError(t, err)
	assert.Equal(t, "at2", rpc.StringField(resp, "access_token"))

	_, err = h.auth.RefreshToken(ctx, rpc.RefreshTokenRequest("stale"))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.auth.SignOut(ctx, rpc.RefreshTokenRequest("rt"))
	require.NoError(t, err)
	assert.Equal(t, "rt", h.users.signedOut)
}

func TestAuthService_SignInErrorCodes(t *testing.T) {
	h := startServer(t)

	tests := []struct {
		err  error
		code codes.Code
		msg  string
	}{
		{common.NewAuthError(common.CodeUserNotFound), codes.NotFound, "auth/user-not-found"},
		{common.NewAuthError(common.CodeWrongPassword), codes.Unauthenticated, "auth/wrong-password"},
		{common.NewAuthError(common.CodeTooManyRequests), codes.ResourceExhausted, "auth/too-many-requests"},
		{common.NewAuthError(common.CodeInvalidEmail), codes.InvalidArgument, "auth/invalid-email"},
		{common.ErrorInternal, codes.Internal, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			h.users.signInErr = tt.err
			_, err := h.auth.SignIn(context.Background(), rpc.Credentials{Email: "a@b.c", Password: "x"}.Encode())
			assert.Equal(t, tt.code, status.Code(err))
			assert.Equal(t, tt.msg, status.Convert(err).Message())
		})
	}
}

func TestDocuments_RequireToken(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	resp, err := h.store.Ping(ctx, rpc.Empty())
	require.NoError(t, err)
	assert.Equal(t, "OK", rpc.StringField(resp, "status"))

	req, err := rpc.DocumentRef{Collection: "notes", Fields: map[string]any{"userId": "u1"}}.Encode()
	require.NoError(t, err)

	_, err = h.store.AddDocument(ctx, req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "missing token", status.Convert(err).Message())

	bad := metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, "garbage")
	_, err = h.store.AddDocument(bad, req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "invalid token", status.Convert(err).Message())

	stream, err := h.store.LiveQuery(ctx, rpc.Query{Collection: "notes", Filter: docstore.Filter{Field: "userId", Value: "u1"}}.Encode())
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestDocuments_ExpiredToken(t *testing.T) {
	h := startServer(t)

	token, err := auth.GenerateToken("u1", []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, token)

	_, err = h.store.ExportDocuments(ctx, rpc.Query{Collection: "notes", Filter: docstore.Filter{Field: "userId", Value: "u1"}}.Encode())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "token expired", status.Convert(err).Message())
}

func TestDocuments_Writes(t *testing.T) {
	h := startServer(t)
	ctx := withToken(t, "u1")

	req, err := rpc.DocumentRef{Collection: "notes", Fields: map[string]any{"userId": "u1", "title": "t"}}.Encode()
	require.NoError(t, err)
	resp, err := h.store.AddDocument(ctx, req)
	require.NoError(t, err)
	id := rpc.StringField(resp, "id")
	assert.NotEmpty(t, id)

	req, err = rpc.DocumentRef{Collection: "notes", Fields: map[string]any{"userId": "u2"}}.Encode()
	require.NoError(t, err)
	_, err = h.store.AddDocument(ctx, req)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	req, err = rpc.DocumentRef{Collection: "notes", ID: id, Fields: map[string]any{"title": "t2"}}.Encode()
	require.NoError(t, err)
	_, err = h.store.UpdateDocument(ctx, req)
	require.NoError(t, err)

	req, err = rpc.DocumentRef{Collection: "notes", ID: "missing", Fields: map[string]any{"title": "x"}}.Encode()
	require.NoError(t, err)
	_, err = h.store.UpdateDocument(ctx, req)
	assert.Equal(t, codes.NotFound, status.Code(err))

	req, err = rpc.DocumentRef{Collection: "notes"}.Encode()
	require.NoError(t, err)
	_, err = h.store.DeleteDocument(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err = rpc.DocumentRef{Collection: "notes", ID: id}.Encode()
	require.NoError(t, err)
	_, err = h.store.DeleteDocument(ctx, req)
	require.NoError(t, err)

	resp, err = h.store.ExportDocuments(ctx, rpc.Query{Collection: "notes", Filter: docstore.Filter{Field: "userId", Value: "u1"}}.Encode())
	require.NoError(t, err)
	assert.Equal(t, "http://minio/exports/u1", rpc.StringField(resp, "url"))
}

func TestDocuments_LiveQueryPushesSnapshots(t *testing.T) {
	h := startServer(t)
	ctx, cancel := context.WithCancel(withToken(t, "u1"))
	defer cancel()

	stream, err := h.store.LiveQuery(ctx, rpc.Query{Collection: "notes", Filter: docstore.Filter{Field: "userId", Value: "u1"}}.Encode())
	require.NoError(t, err)

	msg, err := stream.Recv()
	require.NoError(t, err)
	docs, err := rpc.DecodeSnapshot(msg)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = h.docs.Add(context.Background(), "u2", "notes", map[string]any{"userId": "u2", "title": "theirs"})
	require.NoError(t, err)
	_, err = h.docs.Add(context.Background(), "u1", "notes", map[string]any{"userId": "u1", "title": "mine"})
	require.NoError(t, err)

	msg, err = stream.Recv()
	require.NoError(t, err)
	docs, err = rpc.DecodeSnapshot(msg)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "mine", docs[0].Fields["title"])

	cancel()
	require.Eventually(t, func() bool { return h.docs.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestDocuments_LiveQueryDenied(t *testing.T) {
	h := startServer(t)

	stream, err := h.store.LiveQuery(withToken(t, "u1"), rpc.Query{Collection: "notes", Filter: docstore.Filter{Field: "userId", Value: "u2"}}.Encode())
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
