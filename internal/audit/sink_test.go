package audit

import (
	"context"
	"errors"
	"testing"

	"donorhub/backend/internal/audit/domain"
)

type memRepo struct {
	entries   []*domain.Entry
	createErr error
}

func (m *memRepo) Create(_ context.Context, e *domain.Entry) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRepo) ListByUser(_ context.Context, userID string, limit int) ([]*domain.Entry, error) {
	var out []*domain.Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func TestRepositorySink(t *testing.T) {
	repo := &memRepo{}
	sink := NewRepositorySink(repo)
	if err := sink.Write(context.Background(), &domain.Entry{ID: "1", UserID: "u1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(repo.entries) != 1 || repo.entries[0].ID != "1" {
		t.Errorf("repo entries = %+v", repo.entries)
	}
}

func TestMultiSink_WritesAllAndJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	var calls []string
	ms := MultiSink{
		SinkFunc(func(context.Context, *domain.Entry) error { calls = append(calls, "a"); return errA }),
		nil,
		SinkFunc(func(context.Context, *domain.Entry) error { calls = append(calls, "b"); return nil }),
	}
	err := ms.Write(context.Background(), &domain.Entry{})
	if !errors.Is(err, errA) {
		t.Errorf("err = %v, want to wrap %v", err, errA)
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v, want [a b]", calls)
	}
	if err := (MultiSink{NoopSink{}}).Write(context.Background(), &domain.Entry{}); err != nil {
		t.Errorf("noop multisink err = %v", err)
	}
}
