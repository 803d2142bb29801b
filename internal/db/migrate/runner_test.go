package migrate

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		err := Run(dsn, "up")
		if err == nil || !strings.Contains(err.Error(), "DATABASE_URL is not set") {
			t.Errorf("Run(%q) = %v, want DATABASE_URL error", dsn, err)
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Down", "both"} {
		t.Run(direction, func(t *testing.T) {
			err := Run("postgres://localhost/test", direction)
			if err == nil || !strings.Contains(err.Error(), "direction must be up or down") {
				t.Errorf("Run(direction=%q) = %v", direction, err)
			}
		})
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://localhost with spaces/test"} {
		if err := Run(dsn, "up"); err == nil {
			t.Errorf("Run(%q) should return error", dsn)
		}
	}
}

func TestSource_VersionsInOrder(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil || v != 1 {
		t.Fatalf("First = %d, %v; want 1", v, err)
	}
	want := []string{"users", "password_history", "audit_logs"}
	for i, name := range want {
		r, ident, err := src.ReadUp(v)
		if err != nil {
			t.Fatalf("ReadUp(%d): %v", v, err)
		}
		body, _ := io.ReadAll(r)
		_ = r.Close()
		if ident != name {
			t.Errorf("version %d identifier = %q, want %q", v, ident, name)
		}
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+name) {
			t.Errorf("version %d does not create %s", v, name)
		}
		if i < len(want)-1 {
			if v, err = src.Next(v); err != nil {
				t.Fatalf("Next: %v", err)
			}
		}
	}
	if _, err := src.Next(v); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Next after last = %v, want ErrNotExist", err)
	}
}

func TestErrNoChange(t *testing.T) {
	if ErrNoChange == nil {
		t.Fatal("ErrNoChange should not be nil")
	}
}
