package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/internal/wire"
	"mercator-hq/relay/pkg/query"
	"mercator-hq/relay/pkg/response"
	"mercator-hq/relay/pkg/telemetry/logging"
)

const (
	// lingerTimeout bounds how long a closing connection waits for the
	// client to finish sending, so unread request bytes do not turn the
	// close into a reset that destroys the response.
	lingerTimeout = 250 * time.Millisecond
	lingerBytes   = 256 << 10
)

// serveConn runs one request/response cycle on conn and closes it.
func (s *Server) serveConn(conn net.Conn) {
	start := time.Now()

	w := response.NewWriter(conn,
		response.WithFetcher(s.cfg.Fetcher),
		response.WithLogger(s.cfg.Logger),
		response.WithObserver(s.cfg.TransferObserver),
	)
	c := newContext(context.Background(), w, remoteAddr(conn), s.logger, s.cfg.Fetcher)

	result := s.serveRequest(conn, c)

	if result == outcomeAborted {
		conn.Close()
	} else {
		closeGracefully(conn)
	}

	if c.parsed && s.cfg.Observer != nil {
		s.cfg.Observer.ObserveRequest(c.Method, w.Status(), time.Since(start), w.BytesWritten())
	}
	if c.parsed {
		s.logCompletion(c, result, time.Since(start))
	}
}

func (s *Server) serveRequest(conn net.Conn, c *Context) outcome {
	br := bufio.NewReader(conn)

	if s.cfg.ReadHeaderTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadHeaderTimeout))
	}
	req, err := wire.ReadRequest(br, s.limits)
	if s.cfg.ReadHeaderTimeout > 0 {
		_ = conn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		return s.reject(c, err)
	}

	c.bind(req)

	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.MapCarrier(req.Header))
	ctx, span := s.cfg.Tracer.Start(ctx, "relay.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", c.Method),
			attribute.String("url.path", c.Path),
			attribute.String("relay.request_id", c.RequestID),
		),
	)
	defer span.End()

	c.ctx = logging.WithRequest(ctx, c.RequestID, c.Method, c.Path)
	c.logger = s.logger.With("request_id", c.RequestID)
	c.Response.Header().Set(RequestIDHeader, c.RequestID)

	result := s.dispatch(c)

	status := c.Response.Status()
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	switch {
	case result == outcomeAborted:
		span.SetStatus(codes.Error, "error handler failed")
	case status >= 500:
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	return result
}

// dispatch invokes the handler and routes its failure, if any.
func (s *Server) dispatch(c *Context) outcome {
	if s.cfg.Handler == nil {
		err := c.Response.Text(http.StatusNotImplemented, "No handler configured")
		if err != nil {
			return s.handleFailure(c, err, nil)
		}
		return outcomeServed
	}

	stack, err := runHandler(s.cfg.Handler, c)
	if err == nil && !c.Response.Started() {
		// A handler that wrote nothing gets an empty 200.
		c.Response.Header().Set("Content-Length", "0")
		err = c.Response.WriteHeader(http.StatusOK)
	}
	if err == nil {
		err = c.Response.Flush()
	}
	if err != nil {
		return s.handleFailure(c, err, stack)
	}
	return outcomeServed
}

// runHandler calls h, converting a panic into a PanicError plus stack.
func runHandler(h HandlerFunc, c *Context) (stack []byte, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v}
			stack = debug.Stack()
		}
	}()
	return nil, h(c)
}

// reject answers a request whose head could not be read. Protocol errors
// are answered here and never reach the handlers.
func (s *Server) reject(c *Context, err error) outcome {
	status, kind := 0, ""
	switch {
	case errors.Is(err, io.EOF):
		return outcomeSuppressed
	case errors.Is(err, wire.ErrLineTooLong):
		status, kind = http.StatusRequestURITooLong, "line_too_long"
	case errors.Is(err, wire.ErrHeaderTooLarge):
		status, kind = http.StatusRequestHeaderFieldsTooLarge, "header_too_large"
	case errors.Is(err, wire.ErrVersion):
		status, kind = http.StatusHTTPVersionNotSupported, "version"
	case errors.Is(err, wire.ErrMalformed), errors.Is(err, io.ErrUnexpectedEOF):
		status, kind = http.StatusBadRequest, "malformed"
	}

	if status == 0 {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			s.logger.Debug("timed out reading request head", "remote_addr", c.RemoteAddr)
		} else {
			s.logger.Debug("failed to read request", "remote_addr", c.RemoteAddr, "error", err)
		}
		return outcomeSuppressed
	}

	s.logger.Warn("rejected request", "remote_addr", c.RemoteAddr, "status", status, "error", err)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveProtocolError(kind)
	}

	if err := c.Response.Text(status, http.StatusText(status)); err != nil {
		s.logger.Debug("failed to send rejection", "remote_addr", c.RemoteAddr, "error", err)
		return outcomeSuppressed
	}
	return outcomeServed
}

func (s *Server) logCompletion(c *Context, result outcome, latency time.Duration) {
	status := c.Response.Status()

	level := slog.LevelInfo
	switch {
	case status >= 500 || result == outcomeAborted:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}

	s.logger.Log(c.Context(), level, "request completed",
		"status", status,
		"latency_ms", latency.Milliseconds(),
		"bytes", c.Response.BytesWritten(),
		"remote_addr", c.RemoteAddr,
		"outcome", result.String(),
	)
}

// bind copies the parsed request into the context and attaches it to the
// response writer.
func (c *Context) bind(req *wire.Request) {
	c.Method = req.Method
	c.Target = req.Target
	c.Proto = req.Proto
	c.Header = req.Header
	c.Body = req.Body
	c.ContentLength = req.ContentLength
	c.Path, c.Query = query.Parse(req.Target)
	c.parsed = true

	c.RequestID = req.Header.Get(RequestIDHeader)
	if c.RequestID == "" {
		c.RequestID = uuid.NewString()
	}

	c.Response.Bind(req.Method, req.Header)
}

// closeGracefully half-closes conn and drains what the client still sends
// before closing, bounded by lingerTimeout and lingerBytes.
func closeGracefully(conn net.Conn) {
	defer conn.Close()

	cw, ok := conn.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(conn, lingerBytes))
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
