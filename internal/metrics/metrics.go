package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/missedmail/internal/notifier"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	DigestsSent       *prometheus.CounterVec
	DigestsSuppressed *prometheus.CounterVec
	DigestsFailed     *prometheus.CounterVec
	DigestMessages    prometheus.Histogram
	DigestLatency     *prometheus.HistogramVec
	PendingClaimed    prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer.
// A custom registry keeps tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DigestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "missed_message_digests_sent_total",
			Help: "Digests handed to the mail transport.",
		}, []string{"transport"}),

		DigestsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "missed_message_digests_suppressed_total",
			Help: "Requests that produced no email, by reason.",
		}, []string{"reason"}),

		DigestsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "missed_message_digests_failed_total",
			Help: "Digests the transport rejected.",
		}, []string{"transport"}),

		DigestMessages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "missed_message_digest_messages",
			Help:    "Missed messages included per sent digest.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),

		DigestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "missed_message_digest_seconds",
			Help:    "Time from request to transport ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"transport"}),

		PendingClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "missed_message_events_claimed_total",
			Help: "Missed-message events claimed by the digest worker.",
		}),
	}

	reg.MustRegister(
		m.DigestsSent,
		m.DigestsSuppressed,
		m.DigestsFailed,
		m.DigestMessages,
		m.DigestLatency,
		m.PendingClaimed,
	)

	return m
}

// NotifierHooks returns the callbacks expected by notifier.Hooks.
// Keeps the prometheus calls here so the notifier stays import-free.
func (m *Metrics) NotifierHooks(transport string) notifier.Hooks {
	return notifier.Hooks{
		OnSent: func(messages int, latency time.Duration) {
			m.DigestsSent.WithLabelValues(transport).Inc()
			m.DigestMessages.Observe(float64(messages))
			m.DigestLatency.WithLabelValues(transport).Observe(latency.Seconds())
		},
		OnSuppressed: func(reason notifier.SuppressReason) {
			m.DigestsSuppressed.WithLabelValues(string(reason)).Inc()
		},
		OnFailed: func() {
			m.DigestsFailed.WithLabelValues(transport).Inc()
		},
	}
}

// OnClaimed is handed to the digest worker.
func (m *Metrics) OnClaimed(events int) {
	m.PendingClaimed.Add(float64(events))
}
