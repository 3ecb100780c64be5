package syncserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors. Each engine registers
// into its own registry so several engines can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// updates counts inbound update messages by result
	updates *prometheus.CounterVec

	// probes counts credential checks by result
	probes *prometheus.CounterVec

	// deliveries counts per-subscriber broadcast outcomes
	deliveries *prometheus.CounterVec

	// saveFailures counts store writes that did not complete
	saveFailures prometheus.Counter

	// saveDuration tracks store write latency
	saveDuration prometheus.Histogram
}

func newMetrics(clients func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "livedoc_connected_clients",
		Help: "Number of connected WebSocket clients",
	}, clients)

	return &Metrics{
		registry: reg,
		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livedoc_updates_total",
			Help: "Inbound update messages by result",
		}, []string{"result"}),
		probes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livedoc_auth_checks_total",
			Help: "Credential checks by result",
		}, []string{"result"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livedoc_broadcast_deliveries_total",
			Help: "Per-subscriber broadcast deliveries by outcome",
		}, []string{"outcome"}),
		saveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "livedoc_save_failures_total",
			Help: "Store writes that failed",
		}),
		saveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livedoc_save_duration_seconds",
			Help:    "Store write duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
