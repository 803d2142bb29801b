package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	healthhandler "donorhub/backend/internal/health/handler"
	"donorhub/backend/internal/identity/service"
	sessionhandler "donorhub/backend/internal/session/handler"
	userdomain "donorhub/backend/internal/user/domain"
)

type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

type tokenResolver map[string]*service.Principal

func (r tokenResolver) Resolve(_ context.Context, token string, _ service.ClientMeta) (*service.Principal, error) {
	if token == "expired" {
		return nil, service.ErrSessionExpired
	}
	if p, ok := r[token]; ok {
		return p, nil
	}
	return nil, service.ErrInvalidToken
}

func TestRegisterServices(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{Health: healthhandler.NewServer(nil, nil, nil)})
	if len(reg.services) != 2 || reg.services[0] != "grpc.health.v1.Health" || reg.services[1] != sessionhandler.ServiceName {
		t.Errorf("services = %v", reg.services)
	}

	reg = &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	if len(reg.services) != 1 {
		t.Errorf("without health: services = %v", reg.services)
	}
}

func dial(t *testing.T, deps Deps) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(deps)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func whoAmI(ctx context.Context, conn *grpc.ClientConn, token string) (*structpb.Struct, error) {
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	out := new(structpb.Struct)
	err := conn.Invoke(ctx, sessionhandler.WhoAmIMethod, &emptypb.Empty{}, out)
	return out, err
}

func TestServer_WhoAmI(t *testing.T) {
	resolver := tokenResolver{
		"good": {User: &userdomain.User{ID: "admin-1", Email: "admin@example.com", Role: userdomain.RoleAdmin}, SessionID: "s-1"},
	}
	conn := dial(t, Deps{Auth: resolver})
	ctx := context.Background()

	out, err := whoAmI(ctx, conn, "good")
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if out.GetFields()["email"].GetStringValue() != "admin@example.com" || out.GetFields()["session_id"].GetStringValue() != "s-1" {
		t.Errorf("fields = %v", out.GetFields())
	}

	for token, want := range map[string]codes.Code{"": codes.Unauthenticated, "bad": codes.Unauthenticated, "expired": codes.Unauthenticated} {
		if _, err := whoAmI(ctx, conn, token); status.Code(err) != want {
			t.Errorf("WhoAmI(%q): code = %v, want %v", token, status.Code(err), want)
		}
	}
}

func TestServer_HealthIsPublic(t *testing.T) {
	hs := healthhandler.NewServer(nil, nil, nil)
	hs.Refresh(context.Background())
	conn := dial(t, Deps{Auth: tokenResolver{}, Health: hs})

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}
