package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox delivery outcomes.
const (
	OutboxPublished = "published"
	OutboxRetried   = "retried"
	OutboxParked    = "parked"
)

// OutboxMetrics tracks the outbox publisher. A nil *OutboxMetrics records nothing.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	batches prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_seconds",
			Help:      "Time spent in a single sink publish call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_rows",
			Help:      "Rows claimed per publisher batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
	}
	reg.MustRegister(m.events, m.latency, m.batches)
	return m
}

// Event records the outcome for one outbox row.
func (m *OutboxMetrics) Event(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (m *OutboxMetrics) ObservePublish(sink string, took time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(normalizeLabel(sink)).Observe(took.Seconds())
}

// Batch records how many rows a non-empty batch claimed.
func (m *OutboxMetrics) Batch(rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.batches.Observe(float64(rows))
}
