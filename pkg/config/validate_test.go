package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty listen address", func(c *Config) { c.Server.ListenAddress = "" }, "server.listen_address"},
		{"listen address without port", func(c *Config) { c.Server.ListenAddress = "localhost" }, "server.listen_address"},
		{"listen port out of range", func(c *Config) { c.Server.ListenAddress = "127.0.0.1:70000" }, "server.listen_address"},
		{"zero workers", func(c *Config) { c.Server.MaxWorkers = 0 }, "server.max_workers"},
		{"zero queue", func(c *Config) { c.Server.QueueDepth = 0 }, "server.queue_depth"},
		{"tiny request line", func(c *Config) { c.Server.MaxRequestLineBytes = 8 }, "server.max_request_line_bytes"},
		{"negative header bytes", func(c *Config) { c.Server.MaxHeaderBytes = -1 }, "server.max_header_bytes"},
		{"negative header timeout", func(c *Config) { c.Server.ReadHeaderTimeout = -time.Second }, "server.read_header_timeout"},
		{"negative bind retries", func(c *Config) { c.Server.BindRetries = -1 }, "server.bind_retries"},
		{"negative bind delay", func(c *Config) { c.Server.BindRetryDelay = -time.Second }, "server.bind_retry_delay"},
		{"empty root", func(c *Config) { c.Files.Root = "" }, "files.root"},
		{"unknown strategy", func(c *Config) { c.Files.Strategy = "mmap" }, "files.strategy"},
		{"zero file chunk", func(c *Config) { c.Files.ChunkSize = 0 }, "files.chunk_size"},
		{"negative chunk delay", func(c *Config) { c.Files.ChunkDelay = -time.Millisecond }, "files.chunk_delay"},
		{"zero fetch timeout", func(c *Config) { c.Fetch.Timeout = 0 }, "fetch.timeout"},
		{"zero fetch chunk", func(c *Config) { c.Fetch.ChunkSize = 0 }, "fetch.chunk_size"},
		{"relative search url", func(c *Config) { c.Fetch.SearchURL = "/search" }, "fetch.search_url"},
		{"ftp search url", func(c *Config) { c.Fetch.SearchURL = "ftp://example.com/" }, "fetch.search_url"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "verbose" }, "telemetry.logging.level"},
		{"bad log format", func(c *Config) { c.Telemetry.Logging.Format = "xml" }, "telemetry.logging.format"},
		{"bad metrics address", func(c *Config) { c.Telemetry.Metrics.ListenAddress = "nope" }, "telemetry.metrics.listen_address"},
		{"relative metrics path", func(c *Config) { c.Telemetry.Metrics.Path = "metrics" }, "telemetry.metrics.path"},
		{"empty namespace", func(c *Config) { c.Telemetry.Metrics.Namespace = "" }, "telemetry.metrics.namespace"},
		{"sample ratio above one", func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 }, "telemetry.tracing.sample_ratio"},
		{"tracing without endpoint", func(c *Config) {
			c.Telemetry.Tracing.Enabled = true
			c.Telemetry.Tracing.Endpoint = ""
		}, "telemetry.tracing.endpoint"},
		{"negative debounce", func(c *Config) { c.Dev.Debounce = -time.Second }, "dev.debounce"},
		{"empty command", func(c *Config) { c.Dev.Command = nil }, "dev.command"},
		{"extension without dot", func(c *Config) { c.Dev.Extensions = []string{"go"} }, "dev.extensions[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.field)
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if !verr.HasField(tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestValidate_MetricsDisabledSkipsAddress(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Metrics.ListenAddress = "garbage"

	if err := Validate(cfg); err != nil {
		t.Errorf("expected disabled metrics to skip address checks, got %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("unexpected single error message %q", got)
	}

	multi := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}}
	got := multi.Error()
	if !strings.Contains(got, "2 errors") || !strings.Contains(got, "  - b: worse") {
		t.Errorf("unexpected multi error message %q", got)
	}

	if (ValidationError{}).Error() != "configuration validation failed" {
		t.Error("unexpected empty error message")
	}
}

func TestServerConfig_HostPort(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"127.0.0.1:8000", "127.0.0.1", 8000, false},
		{":0", "", 0, false},
		{"[::1]:443", "::1", 443, false},
		{"localhost", "", 0, true},
		{"host:http", "", 0, true},
		{"host:-1", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port, err := ServerConfig{ListenAddress: tt.addr}.HostPort()
			if (err != nil) != tt.wantErr {
				t.Fatalf("HostPort() error = %v, wantErr %v", err, tt.wantErr)
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("expected %s/%d, got %s/%d", tt.wantHost, tt.wantPort, host, port)
			}
		})
	}
}
