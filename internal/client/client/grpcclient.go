package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/rpc"
)

const pingTimeout = 5 * time.Second

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	auth        rpc.AuthClient
	docs        rpc.DocumentsClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	onRefresh    func(rpc.Session)

	// serializes token rotation; refresh tokens are single use
	refreshMu sync.Mutex
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func isAuthMethod(method string) bool {
	return strings.HasPrefix(method, "/"+rpc.AuthServiceName+"/")
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	return st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

// OnTokensRefreshed registers fn to be called whenever the client rotates
// its tokens on its own, so the new refresh token can be persisted.
func (s *GRPCClient) OnTokensRefreshed(fn func(rpc.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

// refresh rotates the token pair unless another caller already did so since
// stale was read.
func (s *GRPCClient) refresh(ctx context.Context, stale string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	access, refresh := s.tokens()
	if access != stale {
		return nil
	}
	if refresh == "" {
		return ErrUnauthorized
	}

	resp, err := s.auth.RefreshToken(ctx, rpc.RefreshTokenRequest(refresh))
	if err != nil {
		return err
	}
	sess, err := rpc.DecodeSession(resp)
	if err != nil {
		return err
	}
	s.setTokens(sess.AccessToken, sess.RefreshToken)

	s.mu.RLock()
	fn := s.onRefresh
	s.mu.RUnlock()
	if fn != nil {
		fn(sess)
	}
	return nil
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if isAuthMethod(method) {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	access, _ := s.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if !isTokenExpired(err) {
		return err
	}

	if rerr := s.refresh(ctx, access); rerr != nil {
		if errors.Is(rerr, ErrUnauthorized) {
			return err
		}
		return rerr
	}

	// tokens refreshed, retry once with the new access token
	access, _ = s.tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	access, _ := s.tokens()
	return streamer(withAccessToken(ctx, access), desc, cc, method, opts...)
}

func NewStudyNoteClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamAccessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.auth = rpc.NewAuthClient(conn)
	s.docs = rpc.NewDocumentsClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) startSession(resp *structpb.Struct) (rpc.Session, error) {
	sess, err := rpc.DecodeSession(resp)
	if err != nil {
		return rpc.Session{}, fmt.Errorf("rpc error: %w", err)
	}
	s.setTokens(sess.AccessToken, sess.RefreshToken)
	return sess, nil
}

func (s *GRPCClient) SignUp(ctx context.Context, email, password string) (rpc.Session, error) {
	resp, err := s.auth.SignUp(ctx, rpc.Credentials{Email: email, Password: password}.Encode())
	if err != nil {
		return rpc.Session{}, s.mapError(err)
	}
	return s.startSession(resp)
}

func (s *GRPCClient) SignIn(ctx context.Context, email, password string) (rpc.Session, error) {
	resp, err := s.auth.SignIn(ctx, rpc.Credentials{Email: email, Password: password}.Encode())
	if err != nil {
		return rpc.Session{}, s.mapError(err)
	}
	return s.startSession(resp)
}

// Resume exchanges a stored refresh token for a fresh session.
func (s *GRPCClient) Resume(ctx context.Context, refreshToken string) (rpc.Session, error) {
	resp, err := s.auth.RefreshToken(ctx, rpc.RefreshTokenRequest(refreshToken))
	if err != nil {
		return rpc.Session{}, s.mapError(err)
	}
	return s.startSession(resp)
}

// SignOut revokes the refresh token on the server. Local tokens are dropped
// even when the server cannot be reached.
func (s *GRPCClient) SignOut(ctx context.Context) error {
	_, refresh := s.tokens()
	s.setTokens("", "")
	if refresh == "" {
		return nil
	}

	if _, err := s.auth.SignOut(ctx, rpc.RefreshTokenRequest(refresh)); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp, err := s.docs.Ping(ctx, rpc.Empty())
	if err != nil {
		return s.mapError(err)
	}

	if rpc.StringField(resp, "status") != "OK" {
		return ErrUnavailable
	}

	return nil
}

func (s *GRPCClient) AddDocument(ctx context.Context, collection string, fields map[string]any) (string, error) {
	req, err := rpc.DocumentRef{Collection: collection, Fields: fields}.Encode()
	if err != nil {
		return "", err
	}

	resp, err := s.docs.AddDocument(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}
	return rpc.StringField(resp, "id"), nil
}

func (s *GRPCClient) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) error {
	req, err := rpc.DocumentRef{Collection: collection, ID: id, Fields: fields}.Encode()
	if err != nil {
		return err
	}

	if _, err := s.docs.UpdateDocument(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) DeleteDocument(ctx context.Context, collection, id string) error {
	req, err := rpc.DocumentRef{Collection: collection, ID: id}.Encode()
	if err != nil {
		return err
	}

	if _, err := s.docs.DeleteDocument(ctx, req); err != nil {
		return s.mapError(err)
	}
	return nil
}

// ExportDocuments asks the server to export the matching documents and
// returns a short-lived download URL.
func (s *GRPCClient) ExportDocuments(ctx context.Context, q rpc.Query) (string, error) {
	resp, err := s.docs.ExportDocuments(ctx, q.Encode())
	if err != nil {
		return "", s.mapError(err)
	}
	return rpc.StringField(resp, "url"), nil
}

// LiveQuery is an open result-set stream. The first snapshot has already
// been received when OpenLiveQuery returns.
type LiveQuery struct {
	client  *GRPCClient
	stream  grpc.ServerStreamingClient[structpb.Struct]
	first   []docstore.Document
	pending bool
}

// OpenLiveQuery opens a stream that stays alive until ctx is cancelled.
func (s *GRPCClient) OpenLiveQuery(ctx context.Context, q rpc.Query) (*LiveQuery, error) {
	access, _ := s.tokens()
	lq, err := s.openLiveQuery(ctx, q)
	if isTokenExpired(err) {
		if rerr := s.refresh(ctx, access); rerr != nil {
			return nil, s.mapError(rerr)
		}
		lq, err = s.openLiveQuery(ctx, q)
	}
	if err != nil {
		return nil, s.mapError(err)
	}
	return lq, nil
}

func (s *GRPCClient) openLiveQuery(ctx context.Context, q rpc.Query) (*LiveQuery, error) {
	stream, err := s.docs.LiveQuery(ctx, q.Encode())
	if err != nil {
		return nil, err
	}
	msg, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	docs, err := rpc.DecodeSnapshot(msg)
	if err != nil {
		return nil, err
	}
	return &LiveQuery{client: s, stream: stream, first: docs, pending: true}, nil
}

// Next blocks until the server pushes the next snapshot.
func (q *LiveQuery) Next() ([]docstore.Document, error) {
	if q.pending {
		docs := q.first
		q.first, q.pending = nil, false
		return docs, nil
	}

	msg, err := q.stream.Recv()
	if err != nil {
		return nil, q.client.mapError(err)
	}
	docs, err := rpc.DecodeSnapshot(msg)
	if err != nil {
		return nil, fmt.Errorf("rpc error: %w", err)
	}
	return docs, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnavailable) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	if code, ok := common.ParseAuthCode(st.Message()); ok {
		return common.NewAuthError(code)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return common.ErrorPermissionDenied
	case codes.NotFound:
		return common.ErrorNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrorInvalidArgument, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
