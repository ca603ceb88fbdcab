package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// HasField reports whether field failed validation.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

var (
	validStrategies = []string{"zero-copy", "buffered", "chunked"}
	validLevels     = []string{"debug", "info", "warn", "warning", "error"}
	validFormats    = []string{"json", "text", "console"}
)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateFiles(&cfg.Files)...)
	errs = append(errs, validateFetch(&cfg.Fetch)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateDev(&cfg.Dev)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := cfg.HostPort(); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.MaxWorkers < 1 {
		errs = append(errs, FieldError{
			Field:   "server.max_workers",
			Message: "max workers must be at least 1",
		})
	}
	if cfg.QueueDepth < 1 {
		errs = append(errs, FieldError{
			Field:   "server.queue_depth",
			Message: "queue depth must be at least 1",
		})
	}
	if cfg.MaxRequestLineBytes < 16 {
		errs = append(errs, FieldError{
			Field:   "server.max_request_line_bytes",
			Message: "max request line bytes must be at least 16",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.ReadHeaderTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_header_timeout",
			Message: "read header timeout must be non-negative",
		})
	}
	if cfg.BindRetries < 0 {
		errs = append(errs, FieldError{
			Field:   "server.bind_retries",
			Message: "bind retries must be non-negative",
		})
	}
	if cfg.BindRetryDelay < 0 {
		errs = append(errs, FieldError{
			Field:   "server.bind_retry_delay",
			Message: "bind retry delay must be non-negative",
		})
	}

	return errs
}

func validateFiles(cfg *FilesConfig) []FieldError {
	var errs []FieldError

	if cfg.Root == "" {
		errs = append(errs, FieldError{
			Field:   "files.root",
			Message: "root directory is required",
		})
	}
	if !slices.Contains(validStrategies, cfg.Strategy) {
		errs = append(errs, FieldError{
			Field:   "files.strategy",
			Message: fmt.Sprintf("unknown strategy %q (must be one of: %s)", cfg.Strategy, strings.Join(validStrategies, ", ")),
		})
	}
	if cfg.ChunkSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "files.chunk_size",
			Message: "chunk size must be positive",
		})
	}
	if cfg.ChunkDelay < 0 {
		errs = append(errs, FieldError{
			Field:   "files.chunk_delay",
			Message: "chunk delay must be non-negative",
		})
	}

	return errs
}

func validateFetch(cfg *FetchConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "fetch.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.ChunkSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "fetch.chunk_size",
			Message: "chunk size must be positive",
		})
	}
	if err := validateHTTPURL(cfg.SearchURL); err != "" {
		errs = append(errs, FieldError{
			Field:   "fetch.search_url",
			Message: err,
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !slices.Contains(validLevels, strings.ToLower(cfg.Logging.Level)) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be one of: debug, info, warn, error)", cfg.Logging.Level),
		})
	}
	if !slices.Contains(validFormats, strings.ToLower(cfg.Logging.Format)) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be one of: %s)", cfg.Logging.Format, strings.Join(validFormats, ", ")),
		})
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.ListenAddress == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: "listen address is required when metrics are enabled",
			})
		} else if _, _, err := (ServerConfig{ListenAddress: cfg.Metrics.ListenAddress}).HostPort(); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: fmt.Sprintf("invalid listen address %q: %v", cfg.Metrics.ListenAddress, err),
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "path must start with /",
			})
		}
		if cfg.Metrics.Namespace == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.namespace",
				Message: "namespace is required",
			})
		}
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}
	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.service_name",
				Message: "service name is required when tracing is enabled",
			})
		}
	}

	return errs
}

func validateDev(cfg *DevConfig) []FieldError {
	var errs []FieldError

	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "dev.debounce",
			Message: "debounce must be non-negative",
		})
	}
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		errs = append(errs, FieldError{
			Field:   "dev.command",
			Message: "command is required",
		})
	}
	for i, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("dev.extensions[%d]", i),
				Message: fmt.Sprintf("extension %q must start with a dot", ext),
			})
		}
	}

	return errs
}

// validateHTTPURL returns a message describing why raw is not an absolute
// http(s) URL, or "".
func validateHTTPURL(raw string) string {
	if raw == "" {
		return "URL is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "URL must include a host"
	}
	return ""
}
