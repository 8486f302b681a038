package rpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	AuthServiceName      = "studynote.Auth"
	DocumentsServiceName = "studynote.Documents"

	MethodSignUp       = "/studynote.Auth/SignUp"
	MethodSignIn       = "/studynote.Auth/SignIn"
	MethodRefreshToken = "/studynote.Auth/RefreshToken"
	MethodSignOut      = "/studynote.Auth/SignOut"

	MethodPing            = "/studynote.Documents/Ping"
	MethodAddDocument     = "/studynote.Documents/AddDocument"
	MethodUpdateDocument  = "/studynote.Documents/UpdateDocument"
	MethodDeleteDocument  = "/studynote.Documents/DeleteDocument"
	MethodLiveQuery       = "/studynote.Documents/LiveQuery"
	MethodExportDocuments = "/studynote.Documents/ExportDocuments"
)

// AuthServer is implemented by the authentication provider backend.
type AuthServer interface {
	SignUp(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignOut(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// DocumentsServer is implemented by the document store backend.
type DocumentsServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LiveQuery(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

type unaryCall func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unary(name, fullMethod string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SignUp", MethodSignUp, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AuthServer).SignUp(ctx, in)
		}),
		unary("SignIn", MethodSignIn, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AuthServer).SignIn(ctx, in)
		}),
		unary("RefreshToken", MethodRefreshToken, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AuthServer).RefreshToken(ctx, in)
		}),
		unary("SignOut", MethodSignOut, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(AuthServer).SignOut(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studynote/auth",
}

var DocumentsServiceDesc = grpc.ServiceDesc{
	ServiceName: DocumentsServiceName,
	HandlerType: (*DocumentsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", MethodPing, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DocumentsServer).Ping(ctx, in)
		}),
		unary("AddDocument", MethodAddDocument, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DocumentsServer).AddDocument(ctx, in)
		}),
		unary("UpdateDocument", MethodUpdateDocument, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DocumentsServer).UpdateDocument(ctx, in)
		}),
		unary("DeleteDocument", MethodDeleteDocument, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DocumentsServer).DeleteDocument(ctx, in)
		}),
		unary("ExportDocuments", MethodExportDocuments, func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(DocumentsServer).ExportDocuments(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "LiveQuery",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(DocumentsServer).LiveQuery(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
			},
		},
	},
	Metadata: "studynote/documents",
}

func RegisterAuthServer(s grpc.ServiceRegistrar, srv AuthServer) {
	s.RegisterService(&AuthServiceDesc, srv)
}

func RegisterDocumentsServer(s grpc.ServiceRegistrar, srv DocumentsServer) {
	s.RegisterService(&DocumentsServiceDesc, srv)
}

// AuthClient is the client API for the Auth service.
type AuthClient interface {
	SignUp(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SignIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RefreshToken(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SignOut(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// DocumentsClient is the client API for the Documents service.
type DocumentsClient interface {
	Ping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	AddDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	UpdateDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	DeleteDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ExportDocuments(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	LiveQuery(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type conn struct {
	cc grpc.ClientConnInterface
}

func (c conn) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type authClient struct{ conn }

func NewAuthClient(cc grpc.ClientConnInterface) AuthClient {
	return &authClient{conn{cc}}
}

func (c *authClient) SignUp(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSignUp, in, opts)
}

func (c *authClient) SignIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSignIn, in, opts)
}

func (c *authClient) RefreshToken(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodRefreshToken, in, opts)
}

func (c *authClient) SignOut(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSignOut, in, opts)
}

type documentsClient struct{ conn }

func NewDocumentsClient(cc grpc.ClientConnInterface) DocumentsClient {
	return &documentsClient{conn{cc}}
}

func (c *documentsClient) Ping(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPing, in, opts)
}

func (c *documentsClient) AddDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodAddDocument, in, opts)
}

func (c *documentsClient) UpdateDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodUpdateDocument, in, opts)
}

func (c *documentsClient) DeleteDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDeleteDocument, in, opts)
}

func (c *documentsClient) ExportDocuments(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodExportDocuments, in, opts)
}

func (c *documentsClient) LiveQuery(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &DocumentsServiceDesc.Streams[0], MethodLiveQuery, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	// io.EOF means the server already ended the stream; Recv reports why.
	if err := x.ClientStream.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
