package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "donorhub/backend/internal/health/handler"
	"donorhub/backend/internal/server/interceptors"
	sessionhandler "donorhub/backend/internal/session/handler"
)

// PublicMethods do not require a Bearer token.
var PublicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
}

// Deps holds service dependencies for gRPC handlers.
type Deps struct {
	// Auth resolves Bearer tokens for protected RPCs.
	Auth interceptors.Resolver
	// Health is the readiness server. If nil, the health service is not registered.
	Health *healthhandler.Server
	Logger *slog.Logger
}

// NewServer builds a gRPC server with OpenTelemetry instrumentation, logging
// and auth interceptors, and all services registered.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(deps.Logger, PublicMethods),
			interceptors.AuthUnary(deps.Auth, PublicMethods),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - grpc.health.v1.Health            → internal/health/handler
//   - donorhub.auth.v1.SessionService  → internal/session/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
	sessionhandler.RegisterSessionServiceServer(s, sessionhandler.NewServer())
}
