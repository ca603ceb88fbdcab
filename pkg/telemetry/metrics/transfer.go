package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/relay/pkg/config"
)

// TransferMetrics tracks file responses.
//
// Metrics:
//   - relay_files_transfers_total: File responses by strategy and whether
//     zero-copy fell back to the buffered path
//   - relay_files_bytes_total: File bytes sent by strategy
type TransferMetrics struct {
	transfers  *prometheus.CounterVec
	bytesTotal *prometheus.CounterVec
}

// NewTransferMetrics creates and registers transfer metrics with the provided registry.
func NewTransferMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TransferMetrics {
	tm := &TransferMetrics{
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "files",
				Name:      "transfers_total",
				Help:      "Total number of file responses by strategy",
			},
			[]string{"strategy", "fallback"},
		),

		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "files",
				Name:      "bytes_total",
				Help:      "Total number of file bytes sent",
			},
			[]string{"strategy"},
		),
	}

	registry.MustRegister(
		tm.transfers,
		tm.bytesTotal,
	)

	return tm
}

// RecordTransfer records one file response.
func (tm *TransferMetrics) RecordTransfer(strategy string, fellBack bool, bytes int64) {
	tm.transfers.WithLabelValues(strategy, strconv.FormatBool(fellBack)).Inc()
	if bytes > 0 {
		tm.bytesTotal.WithLabelValues(strategy).Add(float64(bytes))
	}
}
