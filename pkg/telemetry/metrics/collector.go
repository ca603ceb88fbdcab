package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/fetch"
	"mercator-hq/relay/pkg/response"
	"mercator-hq/relay/pkg/server"
)

// maxMethods bounds the method label's cardinality.
const maxMethods = 16

// otherLabel replaces label values past the cardinality limit.
const otherLabel = "other"

// Collector records relay metrics on its own registry.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	upstreamMetrics *UpstreamMetrics
	transferMetrics *TransferMetrics

	poolOnce sync.Once

	methodLimiter *CardinalityLimiter
}

var (
	_ server.Observer   = (*Collector)(nil)
	_ fetch.Observer    = (*Collector)(nil)
	_ response.Observer = (*Collector)(nil)
)

// NewCollector creates a collector. If registry is nil a fresh one is
// created, with the Go runtime and process collectors registered.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:          cfg,
		registry:        registry,
		requestMetrics:  NewRequestMetrics(cfg, registry),
		upstreamMetrics: NewUpstreamMetrics(cfg, registry),
		transferMetrics: NewTransferMetrics(cfg, registry),
		methodLimiter:   NewCardinalityLimiter(maxMethods),
	}
}

// ObserveRequest records a completed request. It implements server.Observer.
func (c *Collector) ObserveRequest(method string, status int, duration time.Duration, bytes int64) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(c.method(method), status, duration, bytes)
}

// ObserveProtocolError records a request rejected before dispatch.
func (c *Collector) ObserveProtocolError(kind string) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordProtocolError(kind)
}

// ObserveDisconnect records a client that went away mid-request.
func (c *Collector) ObserveDisconnect() {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordDisconnect()
}

// ObserveUpstream records one upstream exchange. It implements
// fetch.Observer.
func (c *Collector) ObserveUpstream(method, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.upstreamMetrics.RecordExchange(c.method(method), outcome, duration)
}

// ObserveFileTransfer records one file response. It implements
// response.Observer.
func (c *Collector) ObserveFileTransfer(strategy string, fellBack bool, bytes int64) {
	if !c.config.Enabled {
		return
	}
	c.transferMetrics.RecordTransfer(strategy, fellBack, bytes)
}

// RegisterPool exposes the worker pool counters returned by stats, which
// is read on every scrape. Only the first call registers anything.
func (c *Collector) RegisterPool(stats func() server.Stats) {
	c.poolOnce.Do(func() {
		NewPoolMetrics(c.config, c.registry, stats)
	})
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) method(m string) string {
	if m == "" {
		return otherLabel
	}
	if !c.methodLimiter.Allow(m) {
		return otherLabel
	}
	return m
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label value may have its own series: it is
// already known, or the limit has not been reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
