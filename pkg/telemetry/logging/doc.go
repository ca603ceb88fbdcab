// Package logging builds the relay's structured loggers.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - JSON, text and console output selected by configuration
//   - Request-scoped fields (request_id, method, path) carried in a
//     context.Context and added to every record logged with that context
//   - Trace and span IDs taken from the active OpenTelemetry span
//   - Redaction of credential headers when request headers are logged
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithRequest(ctx, "req-123", "GET", "/search")
//	logger.InfoContext(ctx, "request completed", "status", 200)
//	// {"level":"INFO","msg":"request completed","status":200,"request_id":"req-123",...}
//
//	logger.Debug("inbound headers", logging.HeadersAttr("headers", h))
//	// authorization, cookie and friends are logged as [REDACTED]
package logging
