// Package tracing provides OpenTelemetry tracing for relay.
//
// When enabled, New builds a tracer provider that batches spans to an OTLP
// gRPC collector, samples root spans by ratio (child spans follow their
// parent's decision) and installs the W3C trace context propagator
// globally. The server extracts incoming traceparent headers and the fetch
// client injects them into upstream requests, so a relayed request shows
// up as one trace.
//
// When disabled, New returns a Tracer that hands out noop spans.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	srv, err := server.New(server.Config{Tracer: tracer.Tracer()})
package tracing
