package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
	"github.com/dmitrijs2005/studynote/internal/rpc"
)

var authCodes = map[common.AuthCode]codes.Code{
	common.CodeInvalidEmail:    codes.InvalidArgument,
	common.CodeWeakPassword:    codes.InvalidArgument,
	common.CodeUserNotFound:    codes.NotFound,
	common.CodeWrongPassword:   codes.Unauthenticated,
	common.CodeEmailInUse:      codes.AlreadyExists,
	common.CodeTooManyRequests: codes.ResourceExhausted,
}

// toStatus maps service errors to gRPC statuses. Provider codes travel as
// the status message so clients can recover them.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	if code, ok := common.AuthCodeOf(err); ok {
		c, known := authCodes[code]
		if !known {
			c = codes.Internal
		}
		return status.Error(c, string(code))
	}

	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorPermissionDenied):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, "refresh token expired")
	case errors.Is(err, rpc.ErrMalformed), errors.Is(err, docstore.ErrUnsupportedValue):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
