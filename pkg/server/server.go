package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/internal/wire"
	"mercator-hq/relay/pkg/fetch"
	"mercator-hq/relay/pkg/response"
)

// Defaults applied by New to zero-valued Config fields.
const (
	DefaultHost           = "127.0.0.1"
	DefaultMaxWorkers     = 1
	DefaultQueueDepth     = 1024
	DefaultBindRetries    = 2
	DefaultBindRetryDelay = 500 * time.Millisecond
)

// HandlerFunc handles one request. A returned error, or a panic, is routed
// to the error handler unless the client has gone away.
type HandlerFunc func(c *Context) error

// Observer receives dispatcher events.
type Observer interface {
	ObserveRequest(method string, status int, duration time.Duration, bytes int64)
	ObserveProtocolError(kind string)
	ObserveDisconnect()
}

// Config configures a Server. It is copied by New and never changes after.
type Config struct {
	Host string
	// Port 0 picks a free port; see Addr.
	Port int

	// MaxWorkers bounds the number of concurrently served connections.
	MaxWorkers int

	Handler      HandlerFunc
	ErrorHandler ErrorHandlerFunc

	// Debug lets error messages sent to clients carry internal detail.
	Debug bool

	MaxRequestLineBytes int
	MaxHeaderBytes      int

	// ReadHeaderTimeout bounds reading the request head. Zero means no limit.
	ReadHeaderTimeout time.Duration

	// QueueDepth is how many accepted connections may wait for a worker
	// before the accept loop blocks.
	QueueDepth int

	// BindRetries is the number of extra bind attempts on EADDRINUSE.
	// Zero means DefaultBindRetries; a negative value disables retries.
	BindRetries    int
	BindRetryDelay time.Duration
	PortFreer      PortFreer

	Fetcher          *fetch.Client
	Logger           *slog.Logger
	Observer         Observer
	TransferObserver response.Observer
	Tracer           trace.Tracer
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	switch {
	case c.BindRetries == 0:
		c.BindRetries = DefaultBindRetries
	case c.BindRetries < 0:
		c.BindRetries = 0
	}
	if c.BindRetryDelay == 0 {
		c.BindRetryDelay = DefaultBindRetryDelay
	}
	if c.MaxRequestLineBytes == 0 {
		c.MaxRequestLineBytes = wire.DefaultMaxLineBytes
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = wire.DefaultMaxHeaderBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Fetcher == nil {
		c.Fetcher = fetch.New(fetch.Options{Logger: c.Logger})
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("mercator-hq/relay/server")
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	case c.MaxWorkers < 1:
		return fmt.Errorf("max workers must be at least 1, got %d", c.MaxWorkers)
	case c.QueueDepth < 1:
		return fmt.Errorf("queue depth must be at least 1, got %d", c.QueueDepth)
	case c.MaxRequestLineBytes < 16:
		return fmt.Errorf("max request line bytes must be at least 16, got %d", c.MaxRequestLineBytes)
	case c.MaxHeaderBytes < 0:
		return fmt.Errorf("max header bytes must not be negative, got %d", c.MaxHeaderBytes)
	case c.ReadHeaderTimeout < 0 || c.BindRetryDelay < 0:
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Server accepts connections and serves each one on a bounded pool of
// workers.
type Server struct {
	cfg    Config
	logger *slog.Logger
	limits wire.Limits

	ready chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	ln       net.Listener
	pool     *pool
	started  bool
	stopping bool
}

// New validates cfg, fills in defaults and returns a Server ready to Start.
func New(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "server"),
		limits: wire.Limits{
			MaxLineBytes:   cfg.MaxRequestLineBytes,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		ready: make(chan struct{}),
		done:  make(chan struct{}),
		pool:  newPool(cfg.QueueDepth),
	}, nil
}

// Start binds the listening socket and serves until ctx is cancelled or
// Stop is called. It returns after every accepted connection has been
// served.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.started = true
	s.mu.Unlock()

	defer close(s.done)

	ln, err := s.listen(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		ln.Close()
		return nil
	}

	s.pool.start(s.cfg.MaxWorkers, s.serveConn)
	close(s.ready)

	s.logger.Info("server started",
		"address", ln.Addr().String(),
		"max_workers", s.cfg.MaxWorkers,
		"queue_depth", s.cfg.QueueDepth,
	)

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, initiating shutdown")
			s.closeListener()
		case <-stopWatch:
		}
	}()

	acceptErr := s.acceptLoop(ln)

	s.logger.Info("draining workers", "in_flight", s.pool.inFlight.Load(), "queued", s.pool.queued.Load())
	s.pool.drain()
	s.logger.Info("server stopped", "served", s.pool.served.Load())

	return acceptErr
}

func (s *Server) acceptLoop(ln net.Listener) error {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isStopping() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTransientAcceptError(err) {
				delay = min(max(2*delay, 5*time.Millisecond), time.Second)
				s.logger.Warn("accept failed, retrying", "error", err, "retry_in", delay.String())
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		delay = 0
		s.pool.submit(conn)
	}
}

func isTransientAcceptError(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// Stop closes the listening socket, so no new connection is accepted, and
// waits until every in-flight and queued connection has been served.
func (s *Server) Stop() {
	s.closeListener()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return
	}
	s.stopping = true
	if s.ln != nil {
		s.ln.Close()
	}
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Addr returns the bound address, or nil before the socket is bound.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Ready is closed once the socket is bound and workers are running.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed once Start has returned.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot of the pool counters.
func (s *Server) Stats() Stats {
	return s.pool.stats()
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}
