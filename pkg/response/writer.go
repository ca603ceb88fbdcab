package response

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"mercator-hq/relay/pkg/fetch"
	"mercator-hq/relay/pkg/headers"
)

// ServerName is sent in the Server header unless the handler overrides it.
const ServerName = "relay"

// fieldValueReplacer keeps a header value on its own line.
var fieldValueReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// ErrHeadersSent is returned when a second status line is attempted on the
// same connection.
var ErrHeadersSent = errors.New("response headers already sent")

// Observer receives file transfer accounting.
type Observer interface {
	ObserveFileTransfer(strategy string, fellBack bool, bytes int64)
}

// Writer delivers exactly one HTTP/1.1 response on a connection. It is bound
// to the connection before the request is parsed so that every failure path
// has a response surface. A Writer is used by a single goroutine.
type Writer struct {
	conn net.Conn
	bw   *bufio.Writer

	header    headers.Header
	method    string
	reqHeader headers.Header

	fetcher     *fetch.Client
	fetcherOnce sync.Once
	logger      *slog.Logger
	observer    Observer
	copier      ZeroCopier

	started     bool
	status      int
	bodyAllowed bool
	written     int64
}

// Option configures a Writer.
type Option func(*Writer)

// WithRequest binds the parsed request method and headers. The method
// controls HEAD body suppression and the headers supply Range.
func WithRequest(method string, h headers.Header) Option {
	return func(w *Writer) {
		w.method = method
		w.reqHeader = h
	}
}

// WithFetcher sets the upstream client used by StreamProxy.
func WithFetcher(c *fetch.Client) Option {
	return func(w *Writer) { w.fetcher = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithObserver sets the transfer observer.
func WithObserver(o Observer) Option {
	return func(w *Writer) { w.observer = o }
}

// WithZeroCopier replaces the default sendfile-based copier.
func WithZeroCopier(c ZeroCopier) Option {
	return func(w *Writer) {
		if c != nil {
			w.copier = c
		}
	}
}

// NewWriter binds a Writer to conn.
func NewWriter(conn net.Conn, opts ...Option) *Writer {
	w := &Writer{
		conn:      conn,
		bw:        bufio.NewWriterSize(conn, 32*1024),
		header:    headers.New(),
		reqHeader: headers.New(),
		logger:    slog.Default(),
		copier:    SendfileCopier{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Bind attaches the parsed request to a Writer created before parsing.
func (w *Writer) Bind(method string, h headers.Header) {
	w.method = method
	if h != nil {
		w.reqHeader = h
	}
}

// Header returns the response headers that the next WriteHeader sends.
func (w *Writer) Header() headers.Header {
	return w.header
}

// Started reports whether the status line has been written.
func (w *Writer) Started() bool {
	return w.started
}

// Status returns the status sent, or 0 before WriteHeader.
func (w *Writer) Status() int {
	return w.status
}

// BytesWritten returns the number of body bytes delivered so far.
func (w *Writer) BytesWritten() int64 {
	return w.written
}

// WriteHeader writes the status line and headers. Connection: close, Date
// and Server are always present. CR and LF inside values are sent as spaces. Only one status line is ever written;
// later calls return ErrHeadersSent.
func (w *Writer) WriteHeader(status int) error {
	if w.started {
		return ErrHeadersSent
	}
	w.started = true
	w.status = status
	w.bodyAllowed = w.method != http.MethodHead && bodyAllowedForStatus(status)

	w.header.Set("Connection", "close")
	w.header.SetDefault("Date", time.Now().UTC().Format(http.TimeFormat))
	w.header.SetDefault("Server", ServerName)

	text := http.StatusText(status)
	if text == "" {
		text = "status code " + strconv.Itoa(status)
	}

	fmt.Fprintf(w.bw, "HTTP/1.1 %d %s\r\n", status, text)
	for _, name := range w.header.Keys() {
		for _, value := range w.header.Values(name) {
			fmt.Fprintf(w.bw, "%s: %s\r\n", headers.Canonical(name), fieldValueReplacer.Replace(value))
		}
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return fmt.Errorf("failed to write response headers: %w", err)
	}
	return nil
}

// Write writes body bytes, sending a 200 status line first if needed.
// Bodies of HEAD responses and of 1xx/204/304 responses are discarded.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.started {
		if err := w.WriteHeader(http.StatusOK); err != nil {
			return 0, err
		}
	}
	if !w.bodyAllowed {
		return len(p), nil
	}
	n, err := w.bw.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write response body: %w", err)
	}
	return n, nil
}

// Flush pushes buffered bytes to the connection.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush response: %w", err)
	}
	return nil
}

// HTML sends an HTML response.
func (w *Writer) HTML(status int, body string) error {
	return w.send(status, contentTypeHTML, []byte(body))
}

// Text sends a plain-text response.
func (w *Writer) Text(status int, body string) error {
	return w.send(status, contentTypes[KindText], []byte(body))
}

// JSON encodes v and sends it. Nothing is written if encoding fails.
func (w *Writer) JSON(status int, v any) error {
	body, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return w.send(status, contentTypes[KindStructured], body)
}

// Redirect sends a bodiless redirect to location. A zero status means 302.
func (w *Writer) Redirect(location string, status int) error {
	if status == 0 {
		status = http.StatusFound
	}
	if w.started {
		return ErrHeadersSent
	}
	w.header.Set("Location", location)
	w.header.Set("Content-Length", "0")
	if err := w.WriteHeader(status); err != nil {
		return err
	}
	return w.Flush()
}

// Rewrite sends a handler-built Response. Its headers are merged over any
// already set on the Writer; the Content-Type falls back to the body
// kind's default.
func (w *Writer) Rewrite(resp *Response) error {
	if resp == nil {
		return errors.New("rewrite: nil response")
	}
	body, err := resp.Body.Encode()
	if err != nil {
		return err
	}
	for name, value := range resp.Header {
		w.header.Set(name, value)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	return w.send(status, resp.Body.ContentType(), body)
}

func (w *Writer) send(status int, contentType string, body []byte) error {
	if w.started {
		return ErrHeadersSent
	}
	w.header.SetDefault("Content-Type", contentType)
	w.header.Set("Content-Length", strconv.Itoa(len(body)))

	if err := w.WriteHeader(status); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Flush()
}

func (w *Writer) client() *fetch.Client {
	w.fetcherOnce.Do(func() {
		if w.fetcher == nil {
			w.fetcher = fetch.New(fetch.Options{Logger: w.logger})
		}
	})
	return w.fetcher
}

func bodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
