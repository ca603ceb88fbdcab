// Package telemetry groups the observability packages used by relay.
//
// # Components
//
//   - logging: slog logger factory, request-scoped fields, header redaction
//   - metrics: Prometheus collector for the dispatcher, file transfers and
//     upstream calls
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness and readiness checks for the admin listener
//
// # Usage
//
//	logger, _ := logging.New(logging.Config{Level: "info", Format: "json"})
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//
//	srv, _ := server.New(server.Config{
//		Handler:          handle,
//		Logger:           logger,
//		Observer:         collector,
//		TransferObserver: collector,
//		Tracer:           tracer.Tracer(),
//	})
//	collector.RegisterPool(srv.Stats)
//
//	checker := health.New(0)
//	checker.RegisterCheck("listener", health.ListenerCheck(srv))
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", collector.Handler())
//	health.Register(mux, checker, version, commit, buildTime)
//
// The admin mux is served on its own listener so that metrics and probes
// stay reachable while every relay worker is busy.
package telemetry
