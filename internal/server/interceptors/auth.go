package interceptors

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"donorhub/backend/internal/identity/service"
)

const bearerPrefix = "bearer "

// Resolver authenticates an access token against the live session store.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string, client service.ClientMeta) (*service.Principal, error)
}

// AuthUnary returns a unary server interceptor that resolves the Bearer (access)
// token from gRPC metadata and sets the caller identity in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token
// (e.g. grpc.health.v1.Health/Check).
func AuthUnary(resolver Resolver, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		p, err := resolver.Resolve(ctx, token, ClientMeta(ctx))
		if err != nil {
			return nil, statusFromAuthError(err)
		}
		ctx = WithIdentity(ctx, Identity{
			UserID:    p.User.ID,
			Email:     p.User.Email,
			Role:      string(p.User.Role),
			SessionID: p.SessionID,
		})
		return handler(ctx, req)
	}
}

func statusFromAuthError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "missing or invalid authorization")
	case errors.Is(err, service.ErrSessionExpired):
		return status.Error(codes.Unauthenticated, "session expired")
	case errors.Is(err, service.ErrUserInactive):
		return status.Error(codes.PermissionDenied, "user not found or inactive")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
