// Package health serves liveness and readiness probes for relay's admin
// listener.
//
// /health answers 200 whenever the process can serve HTTP at all. /ready
// runs every registered check concurrently, each bounded by the checker's
// timeout, and answers 503 if any fails. The relay binary registers
// ListenerCheck, which passes only between the dispatcher binding its port
// and shutting down, and QueueCheck, which fails while too many accepted
// connections wait for a worker.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("listener", health.ListenerCheck(srv))
//	checker.RegisterCheck("queue", health.QueueCheck(srv.Stats, 100))
//	health.Register(mux, checker, version, commit, buildTime)
package health
