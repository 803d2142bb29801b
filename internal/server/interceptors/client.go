package interceptors

import (
	"context"
	"net"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"donorhub/backend/internal/identity/service"
)

// ClientIP returns the peer address of the call, or "unknown". Forwarding
// metadata such as x-forwarded-for is caller-controlled and ignored.
func ClientIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// UserAgent returns the caller's user-agent metadata, or "".
func UserAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("user-agent"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// ClientMeta bundles ClientIP and UserAgent for the auth service.
func ClientMeta(ctx context.Context) service.ClientMeta {
	return service.ClientMeta{IP: ClientIP(ctx), UserAgent: UserAgent(ctx)}
}
