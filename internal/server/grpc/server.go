// Package grpc exposes the authentication provider and the document store
// over gRPC.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/logging"
	"github.com/dmitrijs2005/studynote/internal/rpc"
	"github.com/dmitrijs2005/studynote/internal/server/livequery"
	"github.com/dmitrijs2005/studynote/internal/server/services"
)

// UserService is the authentication provider behind the Auth service.
type UserService interface {
	SignUp(ctx context.Context, email, password string) (*services.Session, error)
	SignIn(ctx context.Context, email, password string) (*services.Session, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
}

// DocumentService is the document store behind the Documents service.
type DocumentService interface {
	Add(ctx context.Context, userID, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, userID, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, userID, collection, id string) error
	Query(ctx context.Context, userID, collection string, filter docstore.Filter) ([]docstore.Document, error)
	Subscribe(userID, collection string, filter docstore.Filter) (*livequery.Subscription, func(), error)
	Export(ctx context.Context, userID, collection string, filter docstore.Filter) (string, error)
}

type GRPCServer struct {
	address   string
	users     UserService
	documents DocumentService
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, us UserService, ds DocumentService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		documents: ds,
		jwtSecret: []byte(secretKey),
	}
}

// NewServer builds a grpc.Server with both services and the access token
// interceptors registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)
	srv := grpc.NewServer(opts...)
	rpc.RegisterAuthServer(srv, s)
	rpc.RegisterDocumentsServer(srv, s)
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully. Open live
// queries end when their client context is cancelled by the stop.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
