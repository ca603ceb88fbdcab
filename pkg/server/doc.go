// Package server is relay's HTTP/1.1 dispatcher.
//
// A Server owns the listening socket and a fixed pool of workers. The accept
// loop only hands connections off; each worker serves one connection end to
// end: it binds a response writer, reads the request head, builds a Context
// and calls the configured handler exactly once. Every response carries
// Connection: close, so one connection carries one request.
//
// # Basic Usage
//
//	srv, err := server.New(server.Config{
//	    Port:       8000,
//	    MaxWorkers: 3,
//	    Handler: func(c *server.Context) error {
//	        return c.Response.JSON(200, map[string]any{"path": c.Path})
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // blocks until ctx is cancelled or Stop is called
//
// # Concurrency
//
// At most MaxWorkers handlers run at once. When every worker is busy,
// accepted connections wait in a queue of QueueDepth entries; when the queue
// is full the accept loop stops accepting, and further clients wait in the
// kernel backlog. Nothing is rejected for load.
//
// # Shutdown
//
// Stop (or cancelling the context passed to Start) is two-phase:
//  1. The listening socket is closed; no new connection is accepted.
//  2. Every queued and in-flight connection is served to completion, then
//     Start returns.
//
// Handlers are never interrupted. A client that disconnects is noticed
// only as a failed read or write.
//
// # Errors
//
// Malformed request heads are answered before any handler runs: 400 for
// syntax errors, 414 for an oversized request line, 431 for an oversized
// header block and 505 for a non-1.x protocol version. Without a handler the
// server answers 501.
//
// A handler that returns an error or panics goes through the error adapter:
//   - If the client is gone (EPIPE, ECONNRESET, closed connection) nothing
//     more is written and the error handler is not called.
//   - Otherwise an Error record is built (status 500 unless the error is a
//     StatusError or implements StatusCoder), the full failure is logged,
//     and the ErrorHandler, or DefaultErrorHandler, is called once.
//   - If the error handler fails, the failure is logged and the connection
//     is closed without another write.
//
// Error.Message holds only a safe, status-defined message unless
// Config.Debug is set.
package server
