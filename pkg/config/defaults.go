package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress       = "127.0.0.1:8000"
	DefaultMaxWorkers          = 1
	DefaultQueueDepth          = 1024
	DefaultMaxRequestLineBytes = 65536
	DefaultMaxHeaderBytes      = 1048576 // 1MB
	DefaultReadHeaderTimeout   = 30 * time.Second
	DefaultBindRetries         = 2
	DefaultBindRetryDelay      = 500 * time.Millisecond

	// Files defaults
	DefaultFilesRoot      = "./public"
	DefaultFilesStrategy  = "zero-copy"
	DefaultFilesChunkSize = 64 * 1024

	// Fetch defaults
	DefaultFetchTimeout   = 30 * time.Second
	DefaultFetchChunkSize = 8192
	DefaultSearchURL      = "https://api.duckduckgo.com/"

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultPrometheusPath       = "/metrics"
	DefaultMetricsNamespace     = "relay"
	DefaultTracingEndpoint      = "localhost:4317"
	DefaultTracingSamplingRate  = 1.0
	DefaultTracingServiceName   = "relay"

	// Dev defaults
	DefaultDevDebounce = 200 * time.Millisecond
)

// Default slice values. Functions so callers never share the backing arrays.
func defaultDevWatch() []string      { return []string{"."} }
func defaultDevExtensions() []string { return []string{".go", ".yaml"} }
func defaultDevCommand() []string    { return []string{"go", "run", "./cmd/relay", "run"} }

// Default returns a Config with every default applied.
//
// Fields whose zero value is meaningful (bind_retries, read_header_timeout,
// metrics.enabled, tracing.sample_ratio) get their defaults here rather
// than in ApplyDefaults. LoadConfig decodes the file on top of Default, so
// an explicit zero or false in YAML is kept.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.BindRetries = DefaultBindRetries
	cfg.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.MaxWorkers == 0 {
		cfg.Server.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.Server.QueueDepth == 0 {
		cfg.Server.QueueDepth = DefaultQueueDepth
	}
	if cfg.Server.MaxRequestLineBytes == 0 {
		cfg.Server.MaxRequestLineBytes = DefaultMaxRequestLineBytes
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.BindRetryDelay == 0 {
		cfg.Server.BindRetryDelay = DefaultBindRetryDelay
	}
	// ReadHeaderTimeout: zero disables the limit, so only Default sets it.

	// Files defaults
	if cfg.Files.Root == "" {
		cfg.Files.Root = DefaultFilesRoot
	}
	if cfg.Files.Strategy == "" {
		cfg.Files.Strategy = DefaultFilesStrategy
	}
	if cfg.Files.ChunkSize == 0 {
		cfg.Files.ChunkSize = DefaultFilesChunkSize
	}

	// Fetch defaults
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = DefaultFetchTimeout
	}
	if cfg.Fetch.ChunkSize == 0 {
		cfg.Fetch.ChunkSize = DefaultFetchChunkSize
	}
	if cfg.Fetch.SearchURL == "" {
		cfg.Fetch.SearchURL = DefaultSearchURL
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}

	// Dev defaults
	if len(cfg.Dev.Watch) == 0 {
		cfg.Dev.Watch = defaultDevWatch()
	}
	if len(cfg.Dev.Extensions) == 0 {
		cfg.Dev.Extensions = defaultDevExtensions()
	}
	if cfg.Dev.Debounce == 0 {
		cfg.Dev.Debounce = DefaultDevDebounce
	}
	if len(cfg.Dev.Command) == 0 {
		cfg.Dev.Command = defaultDevCommand()
	}
}
