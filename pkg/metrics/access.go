package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AccessMetrics records authorization decisions, bulk operation outcomes and
// provisioning repairs.
type AccessMetrics struct {
	decisions      *prometheus.CounterVec
	bulkDuration   *prometheus.HistogramVec
	bulkItems      *prometheus.CounterVec
	profileRepairs prometheus.Counter
}

// NewAccessMetrics registers the access metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	if reg == nil {
		return &AccessMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_decisions_total",
		Help: "Authorization decisions by action and outcome.",
	}, []string{"action", "outcome"})
	bulkDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bulk_operation_duration_seconds",
		Help:    "Duration of bulk door and lock operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	bulkItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_operation_items_total",
		Help: "Per-record outcomes of bulk operations.",
	}, []string{"operation", "outcome"})
	repairs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "profile_repairs_total",
		Help: "Profiles recreated for identities that were missing one.",
	})
	reg.MustRegister(decisions, bulkDuration, bulkItems, repairs)
	return &AccessMetrics{
		decisions:      decisions,
		bulkDuration:   bulkDuration,
		bulkItems:      bulkItems,
		profileRepairs: repairs,
	}
}

// ObserveDecision counts one authorization decision.
func (m *AccessMetrics) ObserveDecision(action string, allowed bool) {
	if m == nil || m.decisions == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.decisions.WithLabelValues(normalizeLabel(action), outcome).Inc()
}

// ObserveBulk records the duration and per-record outcome counts of a bulk run.
func (m *AccessMetrics) ObserveBulk(operation string, duration time.Duration, succeeded, failed int) {
	if m == nil || m.bulkDuration == nil {
		return
	}
	op := normalizeLabel(operation)
	m.bulkDuration.WithLabelValues(op).Observe(duration.Seconds())
	m.bulkItems.WithLabelValues(op, "success").Add(float64(succeeded))
	m.bulkItems.WithLabelValues(op, "failure").Add(float64(failed))
}

// IncProfileRepair counts one provisioning repair.
func (m *AccessMetrics) IncProfileRepair() {
	if m == nil || m.profileRepairs == nil {
		return
	}
	m.profileRepairs.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
