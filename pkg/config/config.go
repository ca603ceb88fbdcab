package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config is the root configuration structure for relay.
type Config struct {
	// Server contains the dispatcher settings: listen address, worker
	// pool, request limits and bind retry behavior.
	Server ServerConfig `yaml:"server"`

	// Files contains static file serving settings.
	Files FilesConfig `yaml:"files"`

	// Fetch contains outbound request settings.
	Fetch FetchConfig `yaml:"fetch"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Dev contains settings for the hot reload command.
	Dev DevConfig `yaml:"dev"`
}

// ServerConfig contains configuration for the HTTP dispatcher.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port". Port 0 picks a free port.
	// Default: "127.0.0.1:8000"
	ListenAddress string `yaml:"listen_address"`

	// MaxWorkers bounds how many requests are served concurrently.
	// Default: 1
	MaxWorkers int `yaml:"max_workers"`

	// QueueDepth is how many accepted connections may wait for a worker.
	// Default: 1024
	QueueDepth int `yaml:"queue_depth"`

	// Debug includes internal error text in error responses.
	// Default: false
	Debug bool `yaml:"debug"`

	// MaxRequestLineBytes bounds the request line; longer lines get 414.
	// Default: 65536
	MaxRequestLineBytes int `yaml:"max_request_line_bytes"`

	// MaxHeaderBytes bounds the header block; larger blocks get 431.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ReadHeaderTimeout bounds reading the request head. Zero disables it.
	// Default: 30s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// BindRetries is the number of extra bind attempts when the address
	// is in use. Zero disables retries.
	// Default: 2
	BindRetries int `yaml:"bind_retries"`

	// BindRetryDelay is the pause before each bind retry.
	// Default: 500ms
	BindRetryDelay time.Duration `yaml:"bind_retry_delay"`

	// FreePortOnConflict kills other processes listening on the port
	// before retrying a bind.
	// Default: false
	FreePortOnConflict bool `yaml:"free_port_on_conflict"`
}

// HostPort splits ListenAddress into host and numeric port.
func (s ServerConfig) HostPort() (string, int, error) {
	host, portStr, err := net.SplitHostPort(s.ListenAddress)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("port %d out of range", port)
	}
	return host, port, nil
}

// FilesConfig contains configuration for static file serving.
type FilesConfig struct {
	// Root is the directory files are served from.
	// Default: "./public"
	Root string `yaml:"root"`

	// Strategy selects the transfer path.
	// Options: "zero-copy", "buffered", "chunked"
	// Default: "zero-copy"
	Strategy string `yaml:"strategy"`

	// ChunkSize is the read size of the chunked strategy.
	// Default: 65536
	ChunkSize int `yaml:"chunk_size"`

	// ChunkDelay pauses between chunks of the chunked strategy.
	// Default: 0
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

// FetchConfig contains configuration for upstream requests.
type FetchConfig struct {
	// Timeout bounds an upstream exchange.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// ChunkSize is the streaming proxy read size.
	// Default: 8192
	ChunkSize int `yaml:"chunk_size"`

	// SearchURL is the upstream behind the /search route.
	// Default: "https://api.duckduckgo.com/"
	SearchURL string `yaml:"search_url"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics and admin endpoint configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the admin listener that serves Prometheus
// metrics and the health endpoints.
type MetricsConfig struct {
	// Enabled controls whether the admin listener runs.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the admin listener address.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "relay"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is the service name in traces.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`
}

// DevConfig contains configuration for `relay dev`.
type DevConfig struct {
	// Watch lists the directories watched for changes.
	// Default: ["."]
	Watch []string `yaml:"watch"`

	// Extensions limits which changed files trigger a restart.
	// Default: [".go", ".yaml"]
	Extensions []string `yaml:"extensions"`

	// Debounce collapses bursts of changes into one restart.
	// Default: 200ms
	Debounce time.Duration `yaml:"debounce"`

	// Command is the server command to run and restart.
	// Default: ["go", "run", "./cmd/relay", "run"]
	Command []string `yaml:"command"`
}
