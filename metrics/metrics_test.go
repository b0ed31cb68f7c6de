package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegistered(t *testing.T) {
	RunsTotal.WithLabelValues("done", "").Inc()
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("done", "")); got < 1 {
		t.Errorf("expected runs counter to be incremented, got %v", got)
	}

	RunsInFlight.Inc()
	RunsInFlight.Dec()
	if got := testutil.ToFloat64(RunsInFlight); got != 0 {
		t.Errorf("expected in-flight gauge back at 0, got %v", got)
	}

	NotifyAttempts.WithLabelValues("timeout").Add(2)
	if got := testutil.ToFloat64(NotifyAttempts.WithLabelValues("timeout")); got < 2 {
		t.Errorf("expected notify attempts >= 2, got %v", got)
	}
}
