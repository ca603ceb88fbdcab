package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/server"
)

// NewPoolMetrics registers gauges that read the worker pool counters from
// stats at scrape time.
//
// Metrics:
//   - relay_pool_in_flight: Connections being served
//   - relay_pool_queued: Accepted connections waiting for a worker
//   - relay_pool_peak_in_flight: Highest in-flight count seen
//   - relay_pool_served_total: Connections fully served
func NewPoolMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, stats func() server.Stats) {
	registry.MustRegister(
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "pool",
				Name:      "in_flight",
				Help:      "Number of connections currently being served",
			},
			func() float64 { return float64(stats().InFlight) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "pool",
				Name:      "queued",
				Help:      "Number of accepted connections waiting for a worker",
			},
			func() float64 { return float64(stats().Queued) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "pool",
				Name:      "peak_in_flight",
				Help:      "Highest number of concurrently served connections",
			},
			func() float64 { return float64(stats().PeakInFlight) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "pool",
				Name:      "served_total",
				Help:      "Total number of connections served",
			},
			func() float64 { return float64(stats().Served) },
		),
	)
}
