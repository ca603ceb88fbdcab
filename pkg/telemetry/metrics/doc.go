// Package metrics provides Prometheus metrics collection for relay.
//
// # Overview
//
// A Collector owns a private Prometheus registry and implements the
// observer interfaces of the dispatcher (server.Observer), the upstream
// client (fetch.Observer) and the file transfer engine (response.Observer),
// so wiring it in is a matter of passing it as those observers.
//
// # Metrics Categories
//
//   - Request Metrics: served requests by method and status, latency,
//     response sizes, protocol rejections and client disconnects
//   - Upstream Metrics: outbound exchanges by outcome and their latency
//   - Transfer Metrics: file transfers by strategy, zero-copy fallbacks
//     and bytes sent
//   - Pool Metrics: in-flight, queued, peak and served connection counts,
//     read from the server on each scrape
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	srv, _ := server.New(server.Config{
//		Observer:         collector,
//		TransferObserver: collector,
//		Fetcher:          fetch.New(fetch.Options{Observer: collector}),
//	})
//	collector.RegisterPool(srv.Stats)
//	http.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// The method label comes from clients. Only the first few distinct methods
// get their own series; later ones are recorded as "other".
package metrics
