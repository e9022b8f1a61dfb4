package sanitize

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the anonymization gate.
type Metrics struct {
	Queries    *prometheus.CounterVec
	Detections *prometheus.CounterVec
	Duration   prometheus.Histogram
}

// NewMetrics creates a Metrics instance with gate metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Queries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_sanitize_queries_total",
			Help: "Total sanitize-and-query outcomes by decision",
		}, []string{"decision"}),
		Detections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_phi_detections_total",
			Help: "Total detected spans by kind",
		}, []string{"kind"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctum_sanitize_duration_seconds",
			Help:    "Latency of sanitize-and-query operations including the audit write",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncQuery increments the outcome counter for a decision label.
func (m *Metrics) IncQuery(decision string) {
	m.Queries.WithLabelValues(decision).Inc()
}

// IncDetections increments the span counter per detected kind.
func (m *Metrics) IncDetections(spans []DetectedSpan) {
	for _, s := range spans {
		m.Detections.WithLabelValues(string(s.Kind)).Inc()
	}
}

// ObserveDuration records the latency of one operation.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.Duration.Observe(seconds)
}
