package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for outbox relaying.
type Metrics struct {
	Relayed prometheus.Counter
	Errors  prometheus.Counter
}

// NewMetrics creates a Metrics instance with relay metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Relayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sanctum_audit_relayed_total",
			Help: "Total outbox rows published to Kafka",
		}),
		Errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sanctum_audit_relay_errors_total",
			Help: "Total outbox drain passes that failed and were retried",
		}),
	}
}

// IncRelayed increments the relayed counter.
func (m *Metrics) IncRelayed() {
	m.Relayed.Inc()
}

// IncErrors increments the drain error counter.
func (m *Metrics) IncErrors() {
	m.Errors.Inc()
}
