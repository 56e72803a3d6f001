package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.TokenIssued("class_session")
	m.TokenIssued("class_session")
	m.Redemption("class_session", "recorded", 3*time.Millisecond)

	if got := testutil.ToFloat64(m.tokensIssued.WithLabelValues("class_session")); got != 2 {
		t.Fatalf("tokens issued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.redemptions.WithLabelValues("class_session", "recorded")); got != 1 {
		t.Fatalf("redemptions = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.TokenIssued("teacher_self")
	m.Redemption("teacher_self", "check_in", time.Millisecond)
}
