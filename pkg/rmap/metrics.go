package rmap

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation outcomes recorded by Metrics.
const (
	outcomeApplied   = "applied"
	outcomeRejected  = "rejected"
	outcomeExhausted = "exhausted"
	outcomeError     = "error"
)

// Metrics records conditional operation metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	attempts  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
//
// This should be called once per registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rmap",
			Subsystem: "occ",
			Name:      "attempts_total",
			Help:      "Watch/commit cycles started, by operation",
		}, []string{"op"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rmap",
			Subsystem: "occ",
			Name:      "conflicts_total",
			Help:      "Attempts discarded because the watched hash changed, by operation",
		}, []string{"op"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rmap",
			Subsystem: "occ",
			Name:      "operations_total",
			Help:      "Completed operations, by operation and outcome",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rmap",
			Subsystem: "occ",
			Name:      "operation_duration_seconds",
			Help:      "Operation latency including retries",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
	}
	reg.MustRegister(m.attempts, m.conflicts, m.outcomes, m.duration)
	return m
}

func (m *Metrics) attempt(op string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(op).Inc()
}

func (m *Metrics) conflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) finish(op string, applied bool, err error, start time.Time) {
	if m == nil {
		return
	}
	outcome := outcomeRejected
	switch {
	case errors.Is(err, ErrRetriesExhausted):
		outcome = outcomeExhausted
	case err != nil:
		outcome = outcomeError
	case applied:
		outcome = outcomeApplied
	}
	m.outcomes.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
