// Package metrics exposes Prometheus collectors for the sync core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects sync-level observability counters. All fields are safe for
// concurrent use; a nil *Metrics is a valid no-op receiver on every method.
type Metrics struct {
	passes     prometheus.Counter
	passErrors prometheus.Counter
	conflicts  prometheus.Gauge
	pending    prometheus.Gauge
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classkeeper_sync_passes_total",
			Help: "Completed sync passes, including partial ones.",
		}),
		passErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classkeeper_sync_errors_total",
			Help: "Per-item and refresh errors recorded across all passes.",
		}),
		conflicts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classkeeper_sync_conflicts",
			Help: "Currently open conflicts awaiting resolution.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classkeeper_sync_pending_items",
			Help: "Queued local mutations not yet confirmed by the remote authority.",
		}),
	}
	reg.MustRegister(m.passes, m.passErrors, m.conflicts, m.pending)
	return m
}

// PassCompleted marks the end of a pass with its error count.
func (m *Metrics) PassCompleted(errors int) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.passErrors.Add(float64(errors))
}

// SetConflicts records the number of open conflicts.
func (m *Metrics) SetConflicts(n int) {
	if m == nil {
		return
	}
	m.conflicts.Set(float64(n))
}

// SetPending records the mutation queue depth.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
