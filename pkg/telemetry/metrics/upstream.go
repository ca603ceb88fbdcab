package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// UpstreamMetrics tracks outbound exchanges made by fetch and the
// streaming proxy.
//
// Metrics:
//   - relay_upstream_requests_total: Exchanges by method and outcome
//     ("success", "gateway_error", "timeout")
//   - relay_upstream_duration_seconds: Exchange latency
type UpstreamMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewUpstreamMetrics creates and registers upstream metrics with the provided registry.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream exchanges by outcome",
			},
			[]string{"method", "outcome"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Upstream exchange latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		um.requests,
		um.latency,
	)

	return um
}

// RecordExchange records one upstream exchange.
func (um *UpstreamMetrics) RecordExchange(method, outcome string, duration time.Duration) {
	um.requests.WithLabelValues(method, outcome).Inc()
	um.latency.WithLabelValues(method).Observe(duration.Seconds())
}
