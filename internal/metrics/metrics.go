// Package metrics exposes Prometheus collectors for the payment pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the registry and sweeper update.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	initiations      *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	appliedAmount    prometheus.Counter
	discardedAmount  prometheus.Counter
	versionConflicts *prometheus.CounterVec
	expired          prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		initiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ubupresent",
			Name:      "payment_initiations_total",
			Help:      "Payment initiations by result.",
		}, []string{"result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ubupresent",
			Name:      "payment_settlements_total",
			Help:      "Settlement calls by resulting status and outcome.",
		}, []string{"status", "outcome"}),
		appliedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ubupresent",
			Name:      "contribution_amount_applied_total",
			Help:      "Sum of amounts credited to gifts, in minor currency units.",
		}),
		discardedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ubupresent",
			Name:      "contribution_amount_discarded_total",
			Help:      "Sum of requested amounts not credited because the gift needed less.",
		}),
		versionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ubupresent",
			Name:      "event_version_conflicts_total",
			Help:      "Compare-and-swap write conflicts by operation.",
		}, []string{"operation"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ubupresent",
			Name:      "transactions_expired_total",
			Help:      "PENDING transactions removed after the retention window.",
		}),
	}

	reg.MustRegister(
		m.initiations,
		m.settlements,
		m.appliedAmount,
		m.discardedAmount,
		m.versionConflicts,
		m.expired,
	)
	return m
}

// Initiation records one initiation attempt; result is "ok" or an error kind.
func (m *Metrics) Initiation(result string) {
	if m == nil {
		return
	}
	m.initiations.WithLabelValues(result).Inc()
}

// Settlement records one settlement call.
// outcome is "applied", "replayed", "failed", or an anomaly name.
func (m *Metrics) Settlement(status, outcome string, applied, discarded int64) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status, outcome).Inc()
	if applied > 0 {
		m.appliedAmount.Add(float64(applied))
	}
	if discarded > 0 {
		m.discardedAmount.Add(float64(discarded))
	}
}

// VersionConflict records a lost compare-and-swap race.
func (m *Metrics) VersionConflict(operation string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(operation).Inc()
}

// Expired records swept transactions.
func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}
