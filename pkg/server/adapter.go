package server

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// ErrorHandlerFunc renders the response for a failed request. It is
// called at most once per request.
type ErrorHandlerFunc func(c *Context, e *Error) error

var errorPageSanitizer = sync.OnceValue(func() *bluemonday.Policy {
	return bluemonday.StrictPolicy()
})

// DefaultErrorHandler renders a minimal HTML page titled with the status
// code. Only the safe message is shown, escaped; never a stack trace.
func DefaultErrorHandler(c *Context, e *Error) error {
	msg := errorPageSanitizer().Sanitize(e.Message)
	page := fmt.Sprintf("<!DOCTYPE html><html><head><title>Error %d</title></head>"+
		"<body><h1>Error %d</h1><p>%s</p></body></html>", e.Status, e.Status, msg)
	return c.Response.HTML(e.Status, page)
}

// outcome is how a connection's request ended.
type outcome int

const (
	// outcomeServed means a response was written, by the handler or by
	// the error handler.
	outcomeServed outcome = iota
	// outcomeSuppressed means the client was gone; nothing was written.
	outcomeSuppressed
	// outcomeAborted means the error handler failed and the connection
	// must be closed without further writes.
	outcomeAborted
)

// String implements fmt.Stringer for log output.
func (o outcome) String() string {
	switch o {
	case outcomeServed:
		return "served"
	case outcomeSuppressed:
		return "suppressed"
	case outcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// handleFailure routes a handler failure. Disconnects are suppressed;
// anything else becomes an Error record that the error handler renders
// exactly once.
func (s *Server) handleFailure(c *Context, err error, stack []byte) outcome {
	log := c.Logger()

	if IsDisconnect(err) {
		log.Debug("client disconnected", "error", err)
		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveDisconnect()
		}
		return outcomeSuppressed
	}

	c.ensurePath()
	rec := NewError(err, s.cfg.Debug)
	rec.Stack = stack

	args := []any{"error", err, "status", rec.Status}
	if len(stack) > 0 {
		args = append(args, "stack", string(stack))
	}
	log.ErrorContext(c.Context(), "request failed", args...)

	handler := s.cfg.ErrorHandler
	if handler == nil {
		handler = DefaultErrorHandler
	}

	cbErr := callErrorHandler(handler, c, rec)
	if cbErr == nil {
		cbErr = c.Response.Flush()
	}
	switch {
	case cbErr == nil:
		return outcomeServed
	case IsDisconnect(cbErr):
		log.Debug("client disconnected during error response", "error", cbErr)
		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveDisconnect()
		}
		return outcomeSuppressed
	default:
		log.ErrorContext(c.Context(), "error handler failed", "error", cbErr, "original_error", err)
		return outcomeAborted
	}
}

// callErrorHandler runs handler, turning a panic into an error.
func callErrorHandler(handler ErrorHandlerFunc, c *Context, rec *Error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("error handler panicked: %w\n%s", &PanicError{Value: v}, debug.Stack())
		}
	}()
	return handler(c, rec)
}
