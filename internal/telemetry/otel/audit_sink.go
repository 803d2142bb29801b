package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"donorhub/backend/internal/audit"
	"donorhub/backend/internal/audit/domain"
)

const auditScope = "donorhub.audit"

// NewAuditSink returns an audit.Sink that emits entries as OTel log records via
// the given LoggerProvider. If provider is nil, returns a no-op sink.
func NewAuditSink(provider *sdklog.LoggerProvider) audit.Sink {
	if provider == nil {
		return audit.NoopSink{}
	}
	return NewAuditSinkWithLogger(provider.Logger(auditScope))
}

// NewAuditSinkWithLogger returns an audit.Sink emitting to logger.
func NewAuditSinkWithLogger(logger otellog.Logger) audit.Sink {
	return &auditSink{logger: logger}
}

type auditSink struct {
	logger otellog.Logger
}

// Write converts the entry to a log record. Failed outcomes are emitted at WARN.
func (s *auditSink) Write(ctx context.Context, e *domain.Entry) error {
	if e == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetEventName("auth." + string(e.Action))
	rec.SetBody(otellog.StringValue(string(e.Action)))
	if e.Outcome == domain.OutcomeFailure {
		rec.SetSeverity(otellog.SeverityWarn)
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
	}
	rec.AddAttributes(
		otellog.String("audit.id", e.ID),
		otellog.String("outcome", string(e.Outcome)),
	)
	if e.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", e.UserID))
	}
	if e.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", e.SessionID))
	}
	if e.IP != "" {
		rec.AddAttributes(otellog.String("client.address", e.IP))
	}
	if e.UserAgent != "" {
		rec.AddAttributes(otellog.String("user_agent.original", e.UserAgent))
	}
	if e.Error != "" {
		rec.AddAttributes(otellog.String("error", e.Error))
	}
	s.logger.Emit(ctx, rec)
	return nil
}
