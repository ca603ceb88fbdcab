package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"mercator-hq/relay/pkg/fetch"
	"mercator-hq/relay/pkg/headers"
	"mercator-hq/relay/pkg/query"
	"mercator-hq/relay/pkg/response"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// ErrBodyTooLarge is returned by ReadBody when the body exceeds its limit.
var ErrBodyTooLarge = &StatusError{Code: http.StatusRequestEntityTooLarge}

// Context is the per-connection request state handed to the handler. The
// parsed request fields are read-only. Response is bound to the connection
// before the request is read, so it is usable on every path.
type Context struct {
	Method string
	Target string
	Path   string
	Query  query.Params
	Proto  string
	Header headers.Header

	// Body yields exactly the request body as framed by Content-Length or
	// chunked encoding.
	Body io.Reader

	// ContentLength is -1 for chunked bodies.
	ContentLength int64

	RemoteAddr string
	RequestID  string

	Response *response.Writer

	ctx     context.Context
	logger  *slog.Logger
	fetcher *fetch.Client
	parsed  bool

	form     query.Params
	formErr  error
	formRead bool
}

func newContext(ctx context.Context, w *response.Writer, remoteAddr string, logger *slog.Logger, fetcher *fetch.Client) *Context {
	return &Context{
		Header:     headers.New(),
		Query:      query.Params{},
		Body:       http.NoBody,
		RemoteAddr: remoteAddr,
		Response:   w,
		ctx:        ctx,
		logger:     logger,
		fetcher:    fetcher,
	}
}

// Context returns the request-scoped context. It carries log fields and
// the request span and is not cancelled when the client disconnects.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Logger returns a logger carrying the request fields.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Parsed reports whether the request line and headers were read.
func (c *Context) Parsed() bool {
	return c.parsed
}

// ReadBody reads the whole body. A positive limit caps it; exceeding the
// cap returns ErrBodyTooLarge.
func (c *Context) ReadBody(limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(c.Body)
	}
	if c.ContentLength > limit {
		return nil, ErrBodyTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(c.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// Form parses an application/x-www-form-urlencoded body of at most
// query.MaxFormBytes. The body is consumed on the first call.
func (c *Context) Form() (query.Params, error) {
	if !c.formRead {
		c.formRead = true
		c.form, c.formErr = query.ParseForm(c.Body, c.Header)
	}
	return c.form, c.formErr
}

// ProxyHeaders returns the request headers minus the hop-by-hop set, ready
// to forward upstream.
func (c *Context) ProxyHeaders() headers.Header {
	return c.Header.ProxySafe()
}

// Fetch performs one upstream call and returns a Response ready for
// Response.Rewrite. Gateway failures become 502 and 504 responses.
func (c *Context) Fetch(r fetch.Request) *response.Response {
	return response.Fetch(c.ctx, c.fetcher, r)
}

// ensurePath fills Path and Query from whatever target was read, defaulting
// to "/", so error handlers always see a path.
func (c *Context) ensurePath() {
	if c.parsed || c.Path != "" {
		return
	}
	target := c.Target
	if target == "" {
		target = "/"
	}
	c.Path, c.Query = query.Parse(target)
}
