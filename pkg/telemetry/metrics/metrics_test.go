package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/server"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector.config != cfg {
		t.Error("collector config not set correctly")
	}
	if collector.Registry() != registry {
		t.Error("collector registry not set correctly")
	}
}

func TestCollector_DefaultNamespaceAndRegistry(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	collector := NewCollector(cfg, nil)

	if cfg.Namespace != config.DefaultMetricsNamespace {
		t.Errorf("expected namespace %q, got %q", config.DefaultMetricsNamespace, cfg.Namespace)
	}
	if collector.Registry() == nil {
		t.Fatal("expected a registry to be created")
	}

	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "go_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected Go runtime metrics on a fresh registry")
	}
}

func TestCollector_ObserveRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
		bytes  int64
	}{
		{name: "ok", method: "GET", status: 200, bytes: 512},
		{name: "not found", method: "GET", status: 404, bytes: 9},
		{name: "server error", method: "POST", status: 500, bytes: 21},
		{name: "unknown size", method: "PUT", status: 200, bytes: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewCollector(testConfig(), prometheus.NewRegistry())

			collector.ObserveRequest(tt.method, tt.status, 25*time.Millisecond, tt.bytes)

			got := testutil.ToFloat64(collector.requestMetrics.requestsTotal.WithLabelValues(tt.method, fmt.Sprint(tt.status)))
			if got != 1 {
				t.Errorf("expected 1 request, got %v", got)
			}

			sizes := testutil.CollectAndCount(collector.requestMetrics.responseSize)
			want := 1
			if tt.bytes < 0 {
				want = 0
			}
			if sizes != want {
				t.Errorf("expected %d size series, got %d", want, sizes)
			}
		})
	}
}

func TestCollector_ProtocolErrorsAndDisconnects(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.ObserveProtocolError("line_too_long")
	collector.ObserveProtocolError("line_too_long")
	collector.ObserveProtocolError("version")
	collector.ObserveDisconnect()

	if got := testutil.ToFloat64(collector.requestMetrics.protocolErrors.WithLabelValues("line_too_long")); got != 2 {
		t.Errorf("expected 2 line_too_long errors, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestMetrics.protocolErrors.WithLabelValues("version")); got != 1 {
		t.Errorf("expected 1 version error, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestMetrics.disconnects); got != 1 {
		t.Errorf("expected 1 disconnect, got %v", got)
	}
}

func TestCollector_ObserveUpstream(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.ObserveUpstream("GET", "success", 80*time.Millisecond)
	collector.ObserveUpstream("GET", "timeout", 30*time.Second)
	collector.ObserveUpstream("GET", "success", 40*time.Millisecond)

	if got := testutil.ToFloat64(collector.upstreamMetrics.requests.WithLabelValues("GET", "success")); got != 2 {
		t.Errorf("expected 2 successful exchanges, got %v", got)
	}
	if got := testutil.ToFloat64(collector.upstreamMetrics.requests.WithLabelValues("GET", "timeout")); got != 1 {
		t.Errorf("expected 1 timeout, got %v", got)
	}
}

func TestCollector_ObserveFileTransfer(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.ObserveFileTransfer("zero-copy", false, 1000)
	collector.ObserveFileTransfer("zero-copy", true, 500)
	collector.ObserveFileTransfer("chunked", false, 0)

	if got := testutil.ToFloat64(collector.transferMetrics.transfers.WithLabelValues("zero-copy", "true")); got != 1 {
		t.Errorf("expected 1 fallback transfer, got %v", got)
	}
	if got := testutil.ToFloat64(collector.transferMetrics.bytesTotal.WithLabelValues("zero-copy")); got != 1500 {
		t.Errorf("expected 1500 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(collector.transferMetrics.transfers.WithLabelValues("chunked", "false")); got != 1 {
		t.Errorf("expected 1 chunked transfer, got %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.ObserveRequest("GET", 200, time.Millisecond, 10)
	collector.ObserveProtocolError("malformed")
	collector.ObserveDisconnect()
	collector.ObserveUpstream("GET", "success", time.Millisecond)
	collector.ObserveFileTransfer("buffered", false, 10)

	if n := testutil.CollectAndCount(collector.requestMetrics.requestsTotal); n != 0 {
		t.Errorf("expected no request series, got %d", n)
	}
	if n := testutil.CollectAndCount(collector.upstreamMetrics.requests); n != 0 {
		t.Errorf("expected no upstream series, got %d", n)
	}
	if n := testutil.CollectAndCount(collector.transferMetrics.transfers); n != 0 {
		t.Errorf("expected no transfer series, got %d", n)
	}
	if got := testutil.ToFloat64(collector.requestMetrics.disconnects); got != 0 {
		t.Errorf("expected 0 disconnects, got %v", got)
	}
}

func TestCollector_MethodCardinality(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	for i := 0; i < maxMethods+4; i++ {
		collector.ObserveRequest(fmt.Sprintf("M%d", i), 200, time.Millisecond, 1)
	}
	collector.ObserveRequest("", 200, time.Millisecond, 1)

	if got := testutil.ToFloat64(collector.requestMetrics.requestsTotal.WithLabelValues(otherLabel, "200")); got != 5 {
		t.Errorf("expected 5 requests labeled %q, got %v", otherLabel, got)
	}
	if n := testutil.CollectAndCount(collector.requestMetrics.requestsTotal); n != maxMethods+1 {
		t.Errorf("expected %d series, got %d", maxMethods+1, n)
	}
}

func TestCollector_RegisterPool(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	stats := server.Stats{InFlight: 3, Queued: 7, Served: 42, PeakInFlight: 4}
	read := func() server.Stats { return stats }

	collector.RegisterPool(read)
	collector.RegisterPool(read) // second call must not panic on duplicate registration

	expected := `
# HELP test_pool_in_flight Number of connections currently being served
# TYPE test_pool_in_flight gauge
test_pool_in_flight 3
# HELP test_pool_queued Number of accepted connections waiting for a worker
# TYPE test_pool_queued gauge
test_pool_queued 7
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected),
		"test_pool_in_flight", "test_pool_queued"); err != nil {
		t.Errorf("unexpected pool metrics: %v", err)
	}

	stats.Served = 43
	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "test_pool_served_total" {
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 43 {
				t.Errorf("expected served_total 43, got %v", got)
			}
			return
		}
	}
	t.Error("test_pool_served_total not found")
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.ObserveRequest("GET", 200, time.Millisecond, 10)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `test_http_requests_total{method="GET",status="200"} 1`) {
		t.Errorf("expected request counter in output, got:\n%s", body)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	limiter := NewCardinalityLimiter(2)

	if !limiter.Allow("a") || !limiter.Allow("b") {
		t.Fatal("expected first two values to be allowed")
	}
	if limiter.Allow("c") {
		t.Error("expected third value to be rejected")
	}
	if !limiter.Allow("a") {
		t.Error("expected known value to stay allowed")
	}
	if limiter.Count() != 2 {
		t.Errorf("expected count 2, got %d", limiter.Count())
	}
}

func TestCardinalityLimiter_Concurrent(t *testing.T) {
	limiter := NewCardinalityLimiter(10)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			limiter.Allow(fmt.Sprintf("v%d", i%20))
		}(i)
	}
	wg.Wait()

	if limiter.Count() != 10 {
		t.Errorf("expected count 10, got %d", limiter.Count())
	}
}
