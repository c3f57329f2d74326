package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChatMetrics exposes counters/histograms for the client side of the conversation.
type ChatMetrics struct {
	chatRequests   *prometheus.CounterVec
	chatLatency    prometheus.Histogram
	resets         *prometheus.CounterVec
	rejectedSends  *prometheus.CounterVec
	ended          prometheus.Counter
	activeSessions prometheus.Gauge
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctor_chat",
			Subsystem: "backend",
			Name:      "chat_requests_total",
			Help:      "Chat requests sent to the booking backend by outcome",
		}, []string{"outcome"}),
		chatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "doctor_chat",
			Subsystem: "backend",
			Name:      "chat_latency_seconds",
			Help:      "Latency of chat requests to the booking backend",
			Buckets:   prometheus.DefBuckets,
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctor_chat",
			Subsystem: "backend",
			Name:      "reset_requests_total",
			Help:      "Conversation resets sent to the booking backend by outcome",
		}, []string{"outcome"}),
		rejectedSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctor_chat",
			Subsystem: "session",
			Name:      "rejected_sends_total",
			Help:      "User sends rejected before reaching the backend",
		}, []string{"reason"}),
		ended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doctor_chat",
			Subsystem: "session",
			Name:      "conversations_ended_total",
			Help:      "Conversations closed by the backend end signal",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doctor_chat",
			Subsystem: "widget",
			Name:      "active_sessions",
			Help:      "Sessions currently held by the widget server",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.chatRequests, m.chatLatency, m.resets, m.rejectedSends, m.ended, m.activeSessions)
	return m
}

func (m *ChatMetrics) ObserveChat(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(outcome).Inc()
	m.chatLatency.Observe(elapsed.Seconds())
}

func (m *ChatMetrics) ObserveReset(outcome string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedSends.WithLabelValues(reason).Inc()
}

func (m *ChatMetrics) ObserveEnded() {
	if m == nil {
		return
	}
	m.ended.Inc()
}

func (m *ChatMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
