package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the governance ledger.
type Metrics struct {
	// Subnumber allocation outcomes: issued, conflict, exhausted
	AllocationOutcome *prometheus.CounterVec

	// CAS retries consumed per successful allocation
	AllocationRetries prometheus.Histogram

	// Finalize outcomes: finalized, already_finalized, parent_mismatch
	FinalizeOutcome *prometheus.CounterVec

	// Validator findings by check name and severity
	ValidatorFindings *prometheus.CounterVec

	// Repair actions applied by kind
	RepairsApplied *prometheus.CounterVec

	// Latency of ledger operations by operation name
	OperationLatency *prometheus.HistogramVec

	// Subject summary cache hits/misses
	CacheOutcome *prometheus.CounterVec
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		AllocationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "omnivault_ledger_allocations_total",
			Help: "Subnumber allocation outcomes",
		}, []string{"outcome"}), // outcome: "issued", "conflict", "exhausted"

		AllocationRetries: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "omnivault_ledger_allocation_retries",
			Help:    "CAS retries consumed per successful allocation",
			Buckets: []float64{0, 1, 2, 3},
		}),

		FinalizeOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "omnivault_ledger_finalizations_total",
			Help: "Revision finalize outcomes",
		}, []string{"outcome"}),

		ValidatorFindings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "omnivault_ledger_validator_findings_total",
			Help: "Consistency validator findings by check and severity",
		}, []string{"check", "severity"}),

		RepairsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "omnivault_ledger_repairs_total",
			Help: "Repair actions applied by kind",
		}, []string{"kind"}),

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "omnivault_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),

		CacheOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "omnivault_ledger_cache_total",
			Help: "Subject summary cache outcomes",
		}, []string{"outcome"}), // outcome: "hit", "miss"
	}
}

// RecordAllocation records one allocation outcome.
func (m *Metrics) RecordAllocation(outcome string) {
	if m != nil {
		m.AllocationOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveAllocationRetries records retries used by one successful allocation.
func (m *Metrics) ObserveAllocationRetries(retries int) {
	if m != nil {
		m.AllocationRetries.Observe(float64(retries))
	}
}

// RecordFinalize records one finalize outcome.
func (m *Metrics) RecordFinalize(outcome string) {
	if m != nil {
		m.FinalizeOutcome.WithLabelValues(outcome).Inc()
	}
}

// RecordFinding records one validator finding.
func (m *Metrics) RecordFinding(check, severity string) {
	if m != nil {
		m.ValidatorFindings.WithLabelValues(check, severity).Inc()
	}
}

// RecordRepair records one applied repair.
func (m *Metrics) RecordRepair(kind string) {
	if m != nil {
		m.RepairsApplied.WithLabelValues(kind).Inc()
	}
}

// ObserveOperation records the duration of one ledger operation.
func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// RecordCacheHit and RecordCacheMiss record subject cache outcomes.
func (m *Metrics) RecordCacheHit() {
	if m != nil {
		m.CacheOutcome.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) RecordCacheMiss() {
	if m != nil {
		m.CacheOutcome.WithLabelValues("miss").Inc()
	}
}
