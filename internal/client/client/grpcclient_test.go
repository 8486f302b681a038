package client

import (
	"context"
	"errors"
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
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/rpc"
)

/*************
 * Fake rpc clients
 *************/

type fakeAuth struct {
	lastCredentials rpc.Credentials
	lastRefresh     string
	refreshCalls    int
	signOutToken    string

	session    rpc.Session
	err        error
	refreshErr error
	signOutErr error
}

func (f *fakeAuth) SignUp(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastCredentials = rpc.DecodeCredentials(in)
	if f.err != nil {
		return nil, f.err
	}
	return f.session.Encode(), nil
}

func (f *fakeAuth) SignIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.lastCredentials = rpc.DecodeCredentials(in)
	if f.err != nil {
		return nil, f.err
	}
	return f.session.Encode(), nil
}

func (f *fakeAuth) RefreshToken(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.refreshCalls++
	f.lastRefresh = rpc.DecodeRefreshToken(in)
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.session.Encode(), nil
}

func (f *fakeAuth) SignOut(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	f.signOutToken = rpc.DecodeRefreshToken(in)
	return rpc.Empty(), f.signOutErr
}

type fakeDocs struct {
	lastRef   rpc.DocumentRef
	lastQuery rpc.Query
	resp      *structpb.Struct
	err       error
}

func (f *fakeDocs) capture(in *structpb.Struct) (*structpb.Struct, error) {
	if ref, err := rpc.DecodeDocumentRef(in); err == nil {
		f.lastRef = ref
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return rpc.Empty(), nil
	}
	return f.resp, nil
}

func (f *fakeDocs) Ping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return f.capture(in)
}
func (f *fakeDocs) AddDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return f.capture(in)
}
func (f *fakeDocs) UpdateDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return f.capture(in)
}
func (f *fakeDocs) DeleteDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return f.capture(in)
}
func (f *fakeDocs) ExportDocuments(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	q, err := rpc.DecodeQuery(in)
	if err == nil {
		f.lastQuery = q
	}
	return f.capture(in)
}
func (f *fakeDocs) LiveQuery(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	return nil, errors.New("not implemented")
}

func expiredErr() error {
	return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
}

/*************
 * accessTokenInterceptor tests
 *************/

func TestInterceptor_RefreshesTokenOnExpiredAndRetries(t *testing.T) {
	f := &fakeAuth{session: rpc.Session{UserID: "u1", AccessToken: "A2", RefreshToken: "R2"}}
	c := &GRPCClient{auth: f, accessToken: "A1", refreshToken: "R1"}

	var rotated rpc.Session
	c.OnTokensRefreshed(func(s rpc.Session) { rotated = s })

	callCount := 0
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		callCount++
		md, _ := metadata.FromOutgoingContext(ctx)
		toks := md.Get(common.AccessTokenHeaderName)
		require.Len(t, toks, 1)

		if callCount == 1 {
			require.Equal(t, "A1", toks[0])
			return expiredErr()
		}
		require.Equal(t, "A2", toks[0])
		return nil
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.MethodAddDocument, nil, nil, nil, invoker)
	require.NoError(t, err)
	require.Equal(t, 2, callCount)
	require.Equal(t, "A2", c.accessToken)
	require.Equal(t, "R2", c.refreshToken)
	require.Equal(t, "R1", f.lastRefresh)
	require.Equal(t, "R2", rotated.RefreshToken)
}

func TestInterceptor_NoRefreshIfNoRefreshToken(t *testing.T) {
	f := &fakeAuth{}
	c := &GRPCClient{auth: f, accessToken: "A1"}

	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return expiredErr()
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.MethodAddDocument, nil, nil, nil, invoker)
	require.True(t, isTokenExpired(err))
	require.Zero(t, f.refreshCalls)
}

func TestInterceptor_RefreshFailureIsReturned(t *testing.T) {
	f := &fakeAuth{refreshErr: status.Error(codes.Unauthenticated, "refresh token expired")}
	c := &GRPCClient{auth: f, accessToken: "A1", refreshToken: "R1"}

	calls := 0
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		calls++
		return expiredErr()
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.MethodUpdateDocument, nil, nil, nil, invoker)
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "A1", c.accessToken)
}

func TestInterceptor_SkipsRefreshWhenAlreadyRotated(t *testing.T) {
	f := &fakeAuth{}
	c := &GRPCClient{auth: f, accessToken: "A2", refreshToken: "R2"}

	require.NoError(t, c.refresh(context.Background(), "A1"))
	require.Zero(t, f.refreshCalls)
}

func TestInterceptor_AuthMethodsPassThrough(t *testing.T) {
	c := &GRPCClient{accessToken: "A1", refreshToken: "R1"}
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		assert.Empty(t, md.Get(common.AccessTokenHeaderName))
		return expiredErr()
	}
	err := c.accessTokenInterceptor(context.Background(), rpc.MethodSignIn, nil, nil, nil, invoker)
	require.True(t, isTokenExpired(err))
}

func TestInterceptor_IgnoresOtherErrors(t *testing.T) {
	c := &GRPCClient{accessToken: "X", refreshToken: "R"}
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, "some other reason")
	}
	err := c.accessTokenInterceptor(context.Background(), rpc.MethodPing, nil, nil, nil, invoker)
	require.Error(t, err)
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.Unauthenticated, "x")))
	require.Equal(t, common.ErrorPermissionDenied, c.mapError(status.Error(codes.PermissionDenied, "x")))
	require.Equal(t, common.ErrorNotFound, c.mapError(status.Error(codes.NotFound, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.Unavailable, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.DeadlineExceeded, "x")))
	require.Equal(t, context.Canceled, c.mapError(status.Error(codes.Canceled, "x")))
	require.ErrorIs(t, c.mapError(status.Error(codes.InvalidArgument, "x")), common.ErrorInvalidArgument)
	require.ErrorContains(t, c.mapError(errors.New("plain")), "rpc error:")
	require.NoError(t, c.mapError(nil))

	code, ok := common.AuthCodeOf(c.mapError(status.Error(codes.NotFound, string(common.CodeUserNotFound))))
	require.True(t, ok)
	require.Equal(t, common.CodeUserNotFound, code)
}

/*************
 * Auth call tests
 *************/

func TestSignIn_SetsTokens(t *testing.T) {
	f := &fakeAuth{session: rpc.Session{UserID: "u1", Email: "a@b.c", AccessToken: "A", RefreshToken: "R"}}
	c := &GRPCClient{auth: f}

	sess, err := c.SignIn(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	require.Equal(t, "u1", sess.UserID)
	require.Equal(t, "A", c.accessToken)
	require.Equal(t, "R", c.refreshToken)
	require.Equal(t, rpc.Credentials{Email: "a@b.c", Password: "secret"}, f.lastCredentials)
}

func TestSignUp_MapsAuthCode(t *testing.T) {
	f := &fakeAuth{err: status.Error(codes.AlreadyExists, string(common.CodeEmailInUse))}
	c := &GRPCClient{auth: f}

	_, err := c.SignUp(context.Background(), "a@b.c", "secret")
	code, ok := common.AuthCodeOf(err)
	require.True(t, ok)
	require.Equal(t, common.CodeEmailInUse, code)
	require.Empty(t, c.accessToken)
}

func TestResume_UsesStoredRefreshToken(t *testing.T) {
	f := &fakeAuth{session: rpc.Session{UserID: "u1", AccessToken: "A", RefreshToken: "R2"}}
	c := &GRPCClient{auth: f}

	sess, err := c.Resume(context.Background(), "R1")
	require.NoError(t, err)
	require.Equal(t, "R1", f.lastRefresh)
	require.Equal(t, "R2", sess.RefreshToken)
	require.Equal(t, "A", c.accessToken)
}

func TestSignOut_ClearsTokensEvenOnError(t *testing.T) {
	f := &fakeAuth{signOutErr: status.Error(codes.Unavailable, "down")}
	c := &GRPCClient{auth: f, accessToken: "A", refreshToken: "R"}

	err := c.SignOut(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, "R", f.signOutToken)
	require.Empty(t, c.accessToken)
	require.Empty(t, c.refreshToken)
}

func TestSignOut_WithoutSessionIsNoop(t *testing.T) {
	f := &fakeAuth{}
	c := &GRPCClient{auth: f}
	require.NoError(t, c.SignOut(context.Background()))
	require.Empty(t, f.signOutToken)
}

/*************
 * Document call tests
 *************/

func TestPing_OK(t *testing.T) {
	c := &GRPCClient{docs: &fakeDocs{resp: rpc.StringResponse("status", "OK")}}
	require.NoError(t, c.Ping(context.Background()))
}

func TestPing_NotOK_ReturnsUnavailable(t *testing.T) {
	c := &GRPCClient{docs: &fakeDocs{resp: rpc.StringResponse("status", "NOT_OK")}}
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestPing_MapsRPCError(t *testing.T) {
	c := &GRPCClient{docs: &fakeDocs{err: status.Error(codes.Unavailable, "down")}}
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestAddDocument_ReturnsID(t *testing.T) {
	f := &fakeDocs{resp: rpc.StringResponse("id", "n1")}
	c := &GRPCClient{docs: f}

	id, err := c.AddDocument(context.Background(), "notes", map[string]any{"title": "t"})
	require.NoError(t, err)
	require.Equal(t, "n1", id)
	require.Equal(t, "notes", f.lastRef.Collection)
	require.Equal(t, "t", f.lastRef.Fields["title"])
}

func TestAddDocument_UnsupportedValue(t *testing.T) {
	c := &GRPCClient{docs: &fakeDocs{}}
	_, err := c.AddDocument(context.Background(), "notes", map[string]any{"ch": make(chan int)})
	require.ErrorIs(t, err, docstore.ErrUnsupportedValue)
}

func TestUpdateAndDelete(t *testing.T) {
	f := &fakeDocs{}
	c := &GRPCClient{docs: f}

	require.NoError(t, c.UpdateDocument(context.Background(), "notes", "n1", map[string]any{"body": "b"}))
	require.Equal(t, "n1", f.lastRef.ID)
	require.Equal(t, "b", f.lastRef.Fields["body"])

	require.NoError(t, c.DeleteDocument(context.Background(), "notes", "n2"))
	require.Equal(t, "n2", f.lastRef.ID)
	require.Nil(t, f.lastRef.Fields)

	f.err = status.Error(codes.PermissionDenied, "permission denied")
	require.ErrorIs(t, c.DeleteDocument(context.Background(), "notes", "n2"), common.ErrorPermissionDenied)
}

func TestExportDocuments(t *testing.T) {
	f := &fakeDocs{resp: rpc.StringResponse("url", "https://dl")}
	c := &GRPCClient{docs: f}

	q := rpc.Query{Collection: "notes", Filter: docstore.Filter{Field: "userId", Value: "u1"}}
	url, err := c.ExportDocuments(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, "https://dl", url)
	require.Equal(t, q, f.lastQuery)
}

/*************
 * LiveQuery over bufconn
 *************/

type liveServer struct {
	mu       sync.Mutex
	tokens   []string
	expireAt string
	push     chan []docstore.Document
}

func (s *liveServer) Ping(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return rpc.StringResponse("status", "OK"), nil
}
func (s *liveServer) AddDocument(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "")
}
func (s *liveServer) UpdateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "")
}
func (s *liveServer) DeleteDocument(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "")
}
func (s *liveServer) ExportDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "")
}

func (s *liveServer) LiveQuery(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	token := ""
	if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
		token = v[0]
	}
	s.mu.Lock()
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()
	if token == s.expireAt {
		return expiredErr()
	}

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case docs := <-s.push:
			msg, err := rpc.EncodeSnapshot(docs)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func startLiveServer(t *testing.T, srv *liveServer) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	rpc.RegisterDocumentsServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c := &GRPCClient{endpointURL: "passthrough:///bufnet"}
	err := c.InitGRPCClient(
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLiveQuery_StreamsSnapshots(t *testing.T) {
	srv := &liveServer{push: make(chan []docstore.Document, 2)}
	c := startLiveServer(t, srv)
	c.setTokens("A1", "R1")

	srv.push <- []docstore.Document{{ID: "n1", Fields: map[string]any{"title": "one"}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lq, err := c.OpenLiveQuery(ctx, rpc.Query{Collection: "notes", Filter: docstore.Filter{Field: "userId", Value: "u1"}})
	require.NoError(t, err)

	docs, err := lq.Next()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "n1", docs[0].ID)

	srv.push <- []docstore.Document{}
	docs, err = lq.Next()
	require.NoError(t, err)
	require.Empty(t, docs)

	cancel()
	_, err = lq.Next()
	require.ErrorIs(t, err, context.Canceled)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Equal(t, []string{"A1"}, srv.tokens)
}

func TestLiveQuery_RefreshesExpiredToken(t *testing.T) {
	srv := &liveServer{push: make(chan []docstore.Document, 1), expireAt: "A1"}
	c := startLiveServer(t, srv)
	c.auth = &fakeAuth{session: rpc.Session{UserID: "u1", AccessToken: "A2", RefreshToken: "R2"}}
	c.setTokens("A1", "R1")

	srv.push <- nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lq, err := c.OpenLiveQuery(ctx, rpc.Query{Collection: "notes", Filter: docstore.Filter{Field: "userId", Value: "u1"}})
	require.NoError(t, err)
	docs, err := lq.Next()
	require.NoError(t, err)
	require.Empty(t, docs)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Equal(t, []string{"A1", "A2"}, srv.tokens)
}
