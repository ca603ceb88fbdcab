package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/headers"
)

// DefaultTimeout bounds an upstream exchange when neither the request nor the
// client configures one.
const DefaultTimeout = 30 * time.Second

// Upstream outcome labels reported to the Observer.
const (
	OutcomeSuccess = "success"
	OutcomeGateway = "gateway_error"
	OutcomeTimeout = "timeout"
)

// Observer receives one observation per upstream exchange.
type Observer interface {
	ObserveUpstream(method, outcome string, duration time.Duration)
}

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Header  headers.Header
	Body    []byte
	Timeout time.Duration
}

// Response is a fully buffered upstream response. Any HTTP status,
// including 4xx and 5xx, is a Response rather than an error.
type Response struct {
	Status int
	Header headers.Header
	Body   []byte
}

// Stream is an upstream response whose body is read incrementally.
// The caller must Close the body.
type Stream struct {
	Status int
	Header headers.Header
	Body   io.ReadCloser
}

// Options configures a Client.
type Options struct {
	// Timeout is applied to requests that do not set their own (default: 30s)
	Timeout time.Duration

	// Transport overrides the HTTP transport (tests)
	Transport http.RoundTripper

	// Observer records outcome and latency per exchange (optional)
	Observer Observer

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// Client performs single upstream round trips and classifies failures.
type Client struct {
	client   *http.Client
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Client. Compression is disabled so relayed bytes match what
// the upstream sent.
func New(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  true,
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		client:   &http.Client{Transport: transport},
		timeout:  timeout,
		observer: opts.Observer,
		logger:   logger,
		tracer:   otel.Tracer("mercator-hq/relay/fetch"),
	}
}

// Timeout returns the client's default timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do performs the request and buffers the whole response body. The timeout
// bounds the entire exchange.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	timeout := c.timeoutFor(r)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := c.startSpan(ctx, r)
	defer span.End()

	start := time.Now()
	resp, err := c.send(ctx, r)
	if err == nil {
		var body []byte
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err == nil {
			c.finish(span, r, OutcomeSuccess, resp.StatusCode, start)
			return &Response{
				Status: resp.StatusCode,
				Header: headers.FromHTTP(resp.Header).ProxySafe(),
				Body:   body,
			}, nil
		}
	}

	err = classify(ctx, err, r.URL, timeout)
	c.fail(span, r, err, start)
	return nil, err
}

// Open performs the request and returns once the response headers arrive.
// The timeout bounds connection setup and headers, then applies to every
// body read as an idle timeout.
func (c *Client) Open(ctx context.Context, r Request) (*Stream, error) {
	timeout := c.timeoutFor(r)
	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(timeout, func() { cancel(errIdleTimeout) })

	ctx, span := c.startSpan(ctx, r)

	start := time.Now()
	resp, err := c.send(ctx, r)
	if err != nil {
		timer.Stop()
		err = classify(ctx, err, r.URL, timeout)
		c.fail(span, r, err, start)
		span.End()
		cancel(nil)
		return nil, err
	}
	timer.Reset(timeout)

	c.finish(span, r, OutcomeSuccess, resp.StatusCode, start)

	return &Stream{
		Status: resp.StatusCode,
		Header: headers.FromHTTP(resp.Header).ProxySafe(),
		Body: &idleBody{
			ctx:     ctx,
			rc:      resp.Body,
			timer:   timer,
			timeout: timeout,
			target:  r.URL,
			cancel:  cancel,
			span:    span,
		},
	}, nil
}

func (c *Client) send(ctx context.Context, r Request) (*http.Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, &GatewayError{URL: r.URL, Reason: "invalid upstream request", Err: err}
	}

	if r.Header != nil {
		req.Header = r.Header.ProxySafe().ToHTTP()
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.Debug("sending upstream request",
		"method", method,
		"url", r.URL,
	)

	return c.client.Do(req)
}

func (c *Client) timeoutFor(r Request) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return c.timeout
}

func (c *Client) startSpan(ctx context.Context, r Request) (context.Context, trace.Span) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return c.tracer.Start(ctx, "upstream "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", r.URL),
		),
	)
}

func (c *Client) finish(span trace.Span, r Request, outcome string, status int, start time.Time) {
	span.SetAttributes(attribute.Int("http.status_code", status))
	c.observe(r, outcome, start)
}

func (c *Client) fail(span trace.Span, r Request, err error, start time.Time) {
	outcome := OutcomeGateway
	if IsTimeout(err) {
		outcome = OutcomeTimeout
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	c.logger.Warn("upstream request failed",
		"method", r.Method,
		"url", r.URL,
		"outcome", outcome,
		"error", err,
	)
	c.observe(r, outcome, start)
}

func (c *Client) observe(r Request, outcome string, start time.Time) {
	if c.observer == nil {
		return
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	c.observer.ObserveUpstream(method, outcome, time.Since(start))
}

// idleBody re-arms the idle timer after every read and turns a stalled read
// into a TimeoutError.
type idleBody struct {
	ctx     context.Context
	rc      io.ReadCloser
	timer   *time.Timer
	timeout time.Duration
	target  string
	cancel  context.CancelCauseFunc
	span    trace.Span
	closed  bool
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && err != io.EOF {
		err = classify(b.ctx, err, b.target, b.timeout)
		b.span.RecordError(err)
		return n, err
	}
	b.timer.Reset(b.timeout)
	return n, err
}

func (b *idleBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.timer.Stop()
	err := b.rc.Close()
	b.cancel(nil)
	b.span.End()
	if err != nil {
		return fmt.Errorf("failed to close upstream body: %w", err)
	}
	return nil
}
