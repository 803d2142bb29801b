package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AuthAttempt("login", "success")
	m.AuthAttempt("login", "failure")
	m.AuthAttempt("login", "failure")
	m.SessionsEvicted("sweep", 3)
	m.SessionsEvicted("logout", 1)
	m.AuditDropped()

	if got := testutil.ToFloat64(m.authAttempts.WithLabelValues("login", "failure")); got != 2 {
		t.Errorf("login failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sessionsEvicted.WithLabelValues("sweep")); got != 3 {
		t.Errorf("sweep evictions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.auditDropped); got != 1 {
		t.Errorf("audit dropped = %v, want 1", got)
	}
}

func TestMetrics_ActiveSessionsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	n := 4
	m.TrackActiveSessions(func() int { return n })

	expected := `
# HELP donorhub_sessions_active Sessions currently held in memory.
# TYPE donorhub_sessions_active gauge
donorhub_sessions_active 4
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "donorhub_sessions_active"); err != nil {
		t.Error(err)
	}
	n = 1
	if err := testutil.GatherAndCompare(reg, strings.NewReader(strings.Replace(expected, " 4\n", " 1\n", 1)), "donorhub_sessions_active"); err != nil {
		t.Error(err)
	}
}

func TestMetrics_ObserveHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveHTTP("POST", "/api/auth/login", 401, 20*time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/api/auth/login", "401")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.httpRequestDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.AuthAttempt("login", "success")
	m.SessionsEvicted("sweep", 1)
	m.AuditDropped()
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.TrackActiveSessions(func() int { return 0 })
}
