// ABOUTME: Prometheus metrics for registry and proxy entry points
// ABOUTME: Nil-safe so components can run without a metrics backend

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for EntrypointTotal.
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeFrozen       = "frozen"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
)

// Metrics provides observability for the whitelist gateway.
// Tracks entry-point outcomes, admin-set shape and forwarded actions.
type Metrics struct {
	EntrypointTotal    *prometheus.CounterVec
	EntrypointDuration *prometheus.HistogramVec
	Admins             prometheus.Gauge
	Mutable            prometheus.Gauge
	ForwardedActions   prometheus.Counter
	ReconcileChanges   prometheus.Histogram
	ReplayRejected     prometheus.Counter
}

// New creates a Metrics instance registered with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntrypointTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whitelist_entrypoint_total",
			Help: "Entry point invocations by outcome",
		}, []string{"entrypoint", "outcome"}),
		EntrypointDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whitelist_entrypoint_duration_seconds",
			Help:    "Duration of entry point invocations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"entrypoint"}),
		Admins: f.NewGauge(prometheus.GaugeOpts{
			Name: "whitelist_admins",
			Help: "Number of principals in the admin set",
		}),
		Mutable: f.NewGauge(prometheus.GaugeOpts{
			Name: "whitelist_mutable",
			Help: "1 while the admin set may still change, 0 once frozen",
		}),
		ForwardedActions: f.NewCounter(prometheus.CounterOpts{
			Name: "whitelist_forwarded_actions_total",
			Help: "Total number of actions re-emitted by execute",
		}),
		ReconcileChanges: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whitelist_reconcile_changes",
			Help:    "Inserts plus removals applied by one update_admins",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ReplayRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "whitelist_replay_rejected_total",
			Help: "Execute requests rejected as replays",
		}),
	}
}

// ObserveEntrypoint records one call. Call with time.Now() at the start.
func (m *Metrics) ObserveEntrypoint(entrypoint, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.EntrypointTotal.WithLabelValues(entrypoint, outcome).Inc()
	m.EntrypointDuration.WithLabelValues(entrypoint).Observe(time.Since(start).Seconds())
}

// SetAdminState publishes the current admin count and mutability flag.
func (m *Metrics) SetAdminState(admins int, mutable bool) {
	if m == nil {
		return
	}
	m.Admins.Set(float64(admins))
	if mutable {
		m.Mutable.Set(1)
	} else {
		m.Mutable.Set(0)
	}
}

// SetMutable publishes the mutability flag alone.
func (m *Metrics) SetMutable(mutable bool) {
	if m == nil {
		return
	}
	if mutable {
		m.Mutable.Set(1)
	} else {
		m.Mutable.Set(0)
	}
}

// ObserveReconcile records the size of an applied reconciliation plan.
func (m *Metrics) ObserveReconcile(changes int) {
	if m == nil {
		return
	}
	m.ReconcileChanges.Observe(float64(changes))
}

// AddForwarded counts actions re-emitted by execute.
func (m *Metrics) AddForwarded(n int) {
	if m == nil {
		return
	}
	m.ForwardedActions.Add(float64(n))
}

// IncrementReplayRejected records a rejected replay.
func (m *Metrics) IncrementReplayRejected() {
	if m == nil {
		return
	}
	m.ReplayRejected.Inc()
}
