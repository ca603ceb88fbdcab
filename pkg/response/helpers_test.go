package response

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"mercator-hq/relay/internal/testutil"
	"mercator-hq/relay/pkg/headers"
)

// result is what a client observed for one response.
type result struct {
	resp   *http.Response
	body   []byte
	err    error
	writer *Writer
}

// pipeRoundTrip runs fn against a Writer bound to one end of a net.Pipe and
// parses what the other end receives. net.Pipe has no file descriptor, so
// the zero-copy strategy always takes its fallback here.
func pipeRoundTrip(t *testing.T, method string, reqHeader headers.Header, fn func(w *Writer) error, opts ...Option) result {
	t.Helper()
	server, client := net.Pipe()
	return roundTrip(t, server, client, method, reqHeader, fn, opts...)
}

// tcpRoundTrip does the same over a loopback TCP connection so sendfile can
// run for real on Linux.
func tcpRoundTrip(t *testing.T, method string, reqHeader headers.Header, fn func(w *Writer) error, opts ...Option) result {
	t.Helper()
	server, client := testutil.TCPPair(t)
	return roundTrip(t, server, client, method, reqHeader, fn, opts...)
}

func roundTrip(t *testing.T, server, client net.Conn, method string, reqHeader headers.Header, fn func(w *Writer) error, opts ...Option) result {
	t.Helper()
	defer client.Close()

	if reqHeader == nil {
		reqHeader = headers.New()
	}

	w := NewWriter(server, append([]Option{WithRequest(method, reqHeader)}, opts...)...)
	errCh := make(chan error, 1)
	go func() {
		err := fn(w)
		server.Close()
		errCh <- err
	}()

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))

	resp, err := http.ReadResponse(bufio.NewReader(client), &http.Request{Method: method})
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	return result{resp: resp, body: body, err: <-errCh, writer: w}
}

func fixture(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	return testutil.Fixture(t, name, size)
}
