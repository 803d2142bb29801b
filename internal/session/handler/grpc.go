// Package handler serves the session service over gRPC. The service is
// described by hand; its messages are protobuf well-known types.
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"donorhub/backend/internal/server/interceptors"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "donorhub.auth.v1.SessionService"
	// WhoAmIMethod is the full method name of WhoAmI.
	WhoAmIMethod = "/" + ServiceName + "/WhoAmI"
)

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	WhoAmI(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// Server implements SessionServiceServer from the identity set by interceptors.AuthUnary.
type Server struct{}

// NewServer returns a new session gRPC server.
func NewServer() *Server {
	return &Server{}
}

// WhoAmI returns the caller's user id, email, role and session id.
func (s *Server) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, ok := interceptors.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	return structpb.NewStruct(map[string]any{
		"user_id":    id.UserID,
		"email":      id.Email,
		"role":       id.Role,
		"session_id": id.SessionID,
	})
}

// RegisterSessionServiceServer registers srv on s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "donorhub/auth/v1/session.proto",
}
