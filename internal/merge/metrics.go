package merge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the merge engine.
type Metrics struct {
	Merges   *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewMetrics creates a Metrics instance with merge metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Merges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_merges_total",
			Help: "Total merge outcomes by terminal state",
		}, []string{"state"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctum_merge_duration_seconds",
			Help:    "Latency of merge invocations including lock wait and the audit write",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncMerge increments the merge counter for a terminal state.
func (m *Metrics) IncMerge(state State) {
	m.Merges.WithLabelValues(string(state)).Inc()
}

// ObserveDuration records the latency of one merge invocation.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.Duration.Observe(seconds)
}
