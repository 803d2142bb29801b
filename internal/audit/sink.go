package audit

import (
	"context"
	"errors"

	"donorhub/backend/internal/audit/domain"
	auditrepo "donorhub/backend/internal/audit/repository"
)

// Sink is a destination for audit entries. Write is called from the logger's
// worker goroutine, one entry at a time.
type Sink interface {
	Write(ctx context.Context, e *domain.Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e *domain.Entry) error

func (f SinkFunc) Write(ctx context.Context, e *domain.Entry) error { return f(ctx, e) }

// NoopSink discards entries.
type NoopSink struct{}

func (NoopSink) Write(context.Context, *domain.Entry) error { return nil }

// RepositorySink persists entries through an audit repository.
type RepositorySink struct {
	repo auditrepo.Repository
}

// NewRepositorySink returns a Sink writing to repo.
func NewRepositorySink(repo auditrepo.Repository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Write(ctx context.Context, e *domain.Entry) error {
	return s.repo.Create(ctx, e)
}

// MultiSink writes every entry to each sink in order. A failing sink does not
// stop the others; all errors are joined.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e *domain.Entry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
