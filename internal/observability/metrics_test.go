package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Match("matched")
	m.Match("matched")
	m.Conflict()
	m.Transition("pending", "accepted")

	if got := testutil.ToFloat64(m.MatchAttempts.WithLabelValues("matched")); got != 2 {
		t.Errorf("match attempts = %v", got)
	}
	if got := testutil.ToFloat64(m.ClaimConflicts); got != 1 {
		t.Errorf("conflicts = %v", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("pending", "accepted")); got != 1 {
		t.Errorf("transitions = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Match("x")
	m.Conflict()
	m.Transition("a", "b")
	m.OracleFailure("distance")
	m.Payment("charge", "ok")
}
