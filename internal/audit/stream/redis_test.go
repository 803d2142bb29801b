package stream

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"donorhub/backend/internal/audit/domain"
)

func TestRedisSink_Write(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	sink, err := Dial(ctx, mr.Addr(), "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	at := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	entries := []*domain.Entry{
		{ID: "01A", UserID: "u1", SessionID: "s1", Action: domain.ActionLogin, Outcome: domain.OutcomeSuccess, IP: "10.0.0.1", UserAgent: "curl", CreatedAt: at},
		{ID: "01B", Action: domain.ActionLogout, Outcome: domain.OutcomeFailure, Error: "invalid token", CreatedAt: at},
	}
	for _, e := range entries {
		if err := sink.Write(ctx, e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	msgs, err := client.XRange(ctx, DefaultStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stream has %d messages, want 2", len(msgs))
	}
	first := msgs[0].Values
	if first["action"] != "login" || first["user_id"] != "u1" || first["session_id"] != "s1" || first["ip"] != "10.0.0.1" {
		t.Errorf("first message = %v", first)
	}
	if first["created_at"] != at.Format(time.RFC3339Nano) {
		t.Errorf("created_at = %v", first["created_at"])
	}
	second := msgs[1].Values
	if _, ok := second["user_id"]; ok {
		t.Error("anonymous entry should not carry user_id")
	}
	if second["error"] != "invalid token" || second["outcome"] != "failure" {
		t.Errorf("second message = %v", second)
	}
}

func TestDial_Errors(t *testing.T) {
	if _, err := Dial(context.Background(), "", "x"); err == nil {
		t.Error("empty address should fail")
	}
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()
	if _, err := Dial(context.Background(), addr, "x"); err == nil {
		t.Error("unreachable redis should fail")
	}
}
