package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the ledger write path.
type Metrics struct {
	Appends       *prometheus.CounterVec
	Retries       prometheus.Counter
	WriteDuration prometheus.Histogram
}

// NewMetrics creates a Metrics instance with ledger metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Appends: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_audit_appends_total",
			Help: "Total audit ledger append outcomes by result",
		}, []string{"result"}),
		Retries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sanctum_audit_append_retries_total",
			Help: "Total audit append attempts retried after a transient store failure",
		}),
		WriteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctum_audit_append_duration_seconds",
			Help:    "Latency of durable audit appends including retries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncAppend increments the append counter for a result.
func (m *Metrics) IncAppend(result string) {
	m.Appends.WithLabelValues(result).Inc()
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	m.Retries.Inc()
}

// ObserveWrite records the latency of one durable append.
func (m *Metrics) ObserveWrite(seconds float64) {
	m.WriteDuration.Observe(seconds)
}
