package handler

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"donorhub/backend/internal/server/interceptors"
)

func TestWhoAmI(t *testing.T) {
	ctx := interceptors.WithIdentity(context.Background(), interceptors.Identity{
		UserID: "user-1", Email: "admin@example.com", Role: "admin", SessionID: "s-1",
	})
	out, err := NewServer().WhoAmI(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	f := out.GetFields()
	if f["user_id"].GetStringValue() != "user-1" || f["email"].GetStringValue() != "admin@example.com" ||
		f["role"].GetStringValue() != "admin" || f["session_id"].GetStringValue() != "s-1" {
		t.Errorf("fields = %v", f)
	}
}

func TestWhoAmI_NoIdentity(t *testing.T) {
	_, err := NewServer().WhoAmI(context.Background(), &emptypb.Empty{})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}
