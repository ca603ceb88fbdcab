package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// RequestMetrics tracks requests served by the dispatcher.
//
// Metrics:
//   - relay_http_requests_total: Requests by method and status code
//   - relay_http_request_duration_seconds: Time from accept to close
//   - relay_http_response_size_bytes: Response body sizes
//   - relay_http_protocol_errors_total: Requests rejected before dispatch
//   - relay_http_disconnects_total: Clients that went away mid-request
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	protocolErrors  *prometheus.CounterVec
	disconnects     prometheus.Counter
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of requests served",
			},
			[]string{"method", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of response bodies in bytes",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 10), // 256B to 64MB
			},
			[]string{"method"},
		),

		protocolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "protocol_errors_total",
				Help:      "Total number of requests rejected before dispatch",
			},
			[]string{"kind"},
		),

		disconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "disconnects_total",
				Help:      "Total number of clients that disconnected mid-request",
			},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.responseSize,
		rm.protocolErrors,
		rm.disconnects,
	)

	return rm
}

// RecordRequest records one completed request.
func (rm *RequestMetrics) RecordRequest(method string, status int, duration time.Duration, bytes int64) {
	rm.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	rm.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
	if bytes >= 0 {
		rm.responseSize.WithLabelValues(method).Observe(float64(bytes))
	}
}

// RecordProtocolError records a rejected request head.
func (rm *RequestMetrics) RecordProtocolError(kind string) {
	rm.protocolErrors.WithLabelValues(kind).Inc()
}

// RecordDisconnect records a client disconnect.
func (rm *RequestMetrics) RecordDisconnect() {
	rm.disconnects.Inc()
}
