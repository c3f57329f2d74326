package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestChatMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)

	m.ObserveChat("ok", 120*time.Millisecond)
	m.ObserveChat("ok", 80*time.Millisecond)
	m.ObserveChat("transport", time.Second)
	m.ObserveReset("status")
	m.ObserveRejected("in_flight")
	m.ObserveEnded()
	m.SetActiveSessions(3)

	if got := testutil.ToFloat64(m.chatRequests.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok chat requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.resets.WithLabelValues("status")); got != 1 {
		t.Fatalf("expected 1 failed reset, got %v", got)
	}
	if got := testutil.ToFloat64(m.ended); got != 1 {
		t.Fatalf("expected 1 ended conversation, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 3 {
		t.Fatalf("expected 3 active sessions, got %v", got)
	}
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveChat("ok", time.Second)
	m.ObserveReset("ok")
	m.ObserveRejected("ended")
	m.ObserveEnded()
	m.SetActiveSessions(1)
}
