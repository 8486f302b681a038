package grpc

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/studynote/internal/rpc"
	"github.com/dmitrijs2005/studynote/internal/server/services"
)

func sessionResponse(s *services.Session) *structpb.Struct {
	return rpc.Session{
		UserID:       s.UserID,
		Email:        s.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}.Encode()
}

func (s *GRPCServer) SignUp(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c := rpc.DecodeCredentials(req)

	sess, err := s.users.SignUp(ctx, c.Email, c.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "user_id", sess.UserID)
	return sessionResponse(sess), nil
}

func (s *GRPCServer) SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c := rpc.DecodeCredentials(req)

	sess, err := s.users.SignIn(ctx, c.Email, c.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Signed in", "user_id", sess.UserID)
	return sessionResponse(sess), nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.users.RefreshToken(ctx, rpc.DecodeRefreshToken(req))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return sessionResponse(sess), nil
}

func (s *GRPCServer) SignOut(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.users.SignOut(ctx, rpc.DecodeRefreshToken(req)); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return rpc.Empty(), nil
}
