package isolation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the extraction gate.
type Metrics struct {
	Extractions *prometheus.CounterVec
	Violations  *prometheus.CounterVec
	Duration    prometheus.Histogram
}

// NewMetrics creates a Metrics instance with gate metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Extractions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_extractions_total",
			Help: "Total extraction outcomes by result",
		}, []string{"result"}),
		Violations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_policy_violations_total",
			Help: "Total strict-mode and sensitivity-cap violations by policy name",
		}, []string{"policy"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctum_extraction_duration_seconds",
			Help:    "Latency of extract operations including the audit write",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncExtraction increments the extraction counter for a result.
func (m *Metrics) IncExtraction(result string) {
	m.Extractions.WithLabelValues(result).Inc()
}

// IncViolation increments the policy violation counter.
func (m *Metrics) IncViolation(policyName string) {
	m.Violations.WithLabelValues(policyName).Inc()
}

// ObserveDuration records the latency of one extract operation.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.Duration.Observe(seconds)
}
