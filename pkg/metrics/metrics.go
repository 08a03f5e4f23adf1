package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry gauges
	ZonesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbiter_zones_total",
			Help: "Total number of defined zones",
		},
	)

	ResourcesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbiter_resources_total",
			Help: "Total number of registered resource definitions",
		},
	)

	ApplicationClassesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbiter_application_classes_total",
			Help: "Total number of application classes",
		},
	)

	ResourceSetsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arbiter_resource_sets_total",
			Help: "Total number of resource sets by state",
		},
		[]string{"state"},
	)

	// Arbitration-cycle metrics
	ArbitrationCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arbiter_arbitration_cycle_duration_seconds",
			Help:    "Time taken to recompute ownership for a zone",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"zone"},
	)

	ArbitrationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_arbitration_cycles_total",
			Help: "Total number of arbitration cycles run by zone",
		},
		[]string{"zone"},
	)

	GrantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_grants_total",
			Help: "Total number of resource grants by resource and zone",
		},
		[]string{"resource", "zone"},
	)

	RevokesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_revokes_total",
			Help: "Total number of resource revocations by resource and zone",
		},
		[]string{"resource", "zone"},
	)

	VetoDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_veto_denials_total",
			Help: "Total number of grants rejected by the policy veto hook",
		},
		[]string{"resource", "zone"},
	)

	DeferredArbitrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_deferred_arbitrations_total",
			Help: "Total number of arbitration requests deferred due to re-entrancy",
		},
		[]string{"zone"},
	)

	StampRebasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arbiter_stamp_rebases_total",
			Help: "Total number of request-stamp counter rebases",
		},
	)

	// Table-store metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_table_transactions_total",
			Help: "Total number of table transactions by outcome",
		},
		[]string{"outcome"},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arbiter_reconciliation_duration_seconds",
			Help:    "Time taken for an invariant-audit cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arbiter_reconciliation_cycles_total",
			Help: "Total number of invariant-audit cycles completed",
		},
	)

	InvariantViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_invariant_violations_total",
			Help: "Total number of invariant violations detected by the auditor, by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ZonesTotal)
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(ApplicationClassesTotal)
	prometheus.MustRegister(ResourceSetsTotal)
	prometheus.MustRegister(ArbitrationCycleDuration)
	prometheus.MustRegister(ArbitrationCyclesTotal)
	prometheus.MustRegister(GrantsTotal)
	prometheus.MustRegister(RevokesTotal)
	prometheus.MustRegister(VetoDenialsTotal)
	prometheus.MustRegister(DeferredArbitrationsTotal)
	prometheus.MustRegister(StampRebasesTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(InvariantViolationsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
