package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/studynote/internal/rpc"
)

func (s *GRPCServer) caller(ctx context.Context) (string, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}
	return userID, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return rpc.StringResponse("status", "OK"), nil
}

func (s *GRPCServer) AddDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := rpc.DecodeDocumentRef(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	id, err := s.documents.Add(ctx, userID, ref.Collection, ref.Fields)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return rpc.StringResponse("id", id), nil
}

func (s *GRPCServer) UpdateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := rpc.DecodeDocumentRef(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if ref.ID == "" {
		return nil, s.toStatus(ctx, fmt.Errorf("%w: id is required", rpc.ErrMalformed))
	}

	if err := s.documents.Update(ctx, userID, ref.Collection, ref.ID, ref.Fields); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return rpc.Empty(), nil
}

func (s *GRPCServer) DeleteDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := rpc.DecodeDocumentRef(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if ref.ID == "" {
		return nil, s.toStatus(ctx, fmt.Errorf("%w: id is required", rpc.ErrMalformed))
	}

	if err := s.documents.Delete(ctx, userID, ref.Collection, ref.ID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return rpc.Empty(), nil
}

func (s *GRPCServer) ExportDocuments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	q, err := rpc.DecodeQuery(req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	url, err := s.documents.Export(ctx, userID, q.Collection, q.Filter)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return rpc.StringResponse("url", url), nil
}

// LiveQuery pushes the full result set once on open and again after every
// change to it, until the client cancels.
func (s *GRPCServer) LiveQuery(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()

	userID, err := s.caller(ctx)
	if err != nil {
		return err
	}
	q, err := rpc.DecodeQuery(req)
	if err != nil {
		return s.toStatus(ctx, err)
	}

	// subscribe before the first read so no change can slip in between
	sub, cancel, err := s.documents.Subscribe(userID, q.Collection, q.Filter)
	if err != nil {
		return s.toStatus(ctx, err)
	}
	defer cancel()

	s.logger.Debug(ctx, "live query opened", "collection", q.Collection, "user_id", userID)
	defer s.logger.Debug(ctx, "live query closed", "collection", q.Collection, "user_id", userID)

	for {
		docs, err := s.documents.Query(ctx, userID, q.Collection, q.Filter)
		if err != nil {
			return s.toStatus(ctx, err)
		}
		snapshot, err := rpc.EncodeSnapshot(docs)
		if err != nil {
			return s.toStatus(ctx, err)
		}
		if err := stream.Send(snapshot); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-sub.C():
		}
	}
}
