// Package config provides configuration management for relay.
//
// This package loads relay's YAML configuration, fills in defaults, applies
// environment variable overrides and validates the result.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("relay.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("relay.yaml")
//
// An empty path passed to LoadConfigWithEnvOverrides starts from Default.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD.
// For example:
//
//   - RELAY_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - RELAY_SERVER_MAX_WORKERS overrides server.max_workers
//   - RELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Values that fail to parse are ignored.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Command line flags in cmd/relay are applied on top of the loaded Config.
//
// # Validation
//
// Validation collects every failing field into a ValidationError:
//
//	configuration validation failed with 2 errors:
//	  - server.max_workers: max workers must be at least 1
//	  - files.strategy: unknown strategy "mmap"
//
// # Example Configuration
//
//	server:
//	  listen_address: "127.0.0.1:8000"
//	  max_workers: 3
//
//	files:
//	  root: "./public"
//	  strategy: "zero-copy"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
