package response

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/fetch"
	"mercator-hq/relay/pkg/headers"
)

// DefaultProxyChunkSize is the read size used when relaying upstream bodies.
const DefaultProxyChunkSize = 8192

// ProxyOptions configures StreamProxy.
type ProxyOptions struct {
	// Method defaults to GET, or HEAD when the client request is HEAD
	Method string

	// Header is forwarded to the upstream minus hop-by-hop entries
	Header headers.Header

	// Body is sent as the upstream request body
	Body []byte

	// Timeout bounds connect and headers, then each body read (default: client timeout)
	Timeout time.Duration

	// ChunkSize is the relay read size (default: 8192)
	ChunkSize int
}

// StreamProxy relays the response of an upstream request to the client
// without buffering the body.
//
// A transport failure sends 502 "Bad Gateway: <reason>" and a timeout sends
// 504 "Gateway Timeout". Otherwise the upstream status (4xx/5xx included) and
// headers minus hop-by-hop entries are relayed, Accept-Ranges: bytes is added
// when the upstream did not send one, and the body is forwarded chunk by chunk.
func (w *Writer) StreamProxy(ctx context.Context, target string, opts ProxyOptions) error {
	if w.started {
		return ErrHeadersSent
	}

	method := opts.Method
	if method == "" && w.method == http.MethodHead {
		method = http.MethodHead
	}

	stream, err := w.client().Open(ctx, fetch.Request{
		Method:  method,
		URL:     target,
		Header:  opts.Header,
		Body:    opts.Body,
		Timeout: opts.Timeout,
	})
	if err != nil {
		return w.gatewayFailure(err)
	}
	defer stream.Body.Close()

	for name, value := range stream.Header {
		w.header.Set(name, value)
	}
	w.header.SetDefault("Accept-Ranges", "bytes")

	if err := w.WriteHeader(stream.Status); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !w.bodyAllowed {
		return nil
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultProxyChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, rerr := stream.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			// The status line is already out; the truncated body and the
			// closing connection are all the client can be told.
			w.logger.Warn("upstream body failed mid-stream",
				"url", target,
				"bytes_relayed", w.written,
				"error", rerr,
			)
			return nil
		}
	}
}

func (w *Writer) gatewayFailure(err error) error {
	var te *fetch.TimeoutError
	if errors.As(err, &te) {
		return w.Text(http.StatusGatewayTimeout, "Gateway Timeout")
	}
	var ge *fetch.GatewayError
	if errors.As(err, &ge) {
		return w.Text(http.StatusBadGateway, "Bad Gateway: "+ge.Reason)
	}
	return fmt.Errorf("proxy request failed: %w", err)
}

// Fetch performs a buffered upstream request and returns the result as a
// Response ready for Rewrite. Transport failures become 502 and timeouts
// become 504 responses rather than errors.
func Fetch(ctx context.Context, client *fetch.Client, r fetch.Request) *Response {
	resp, err := client.Do(ctx, r)
	if err == nil {
		out := New(resp.Status).SetBody(resp.Body)
		out.Header = resp.Header
		return out
	}

	var te *fetch.TimeoutError
	if errors.As(err, &te) {
		return New(http.StatusGatewayTimeout).SetText("Gateway Timeout")
	}

	reason := err.Error()
	var ge *fetch.GatewayError
	if errors.As(err, &ge) {
		reason = ge.Reason
	}
	return New(http.StatusBadGateway).SetText("Bad Gateway: " + reason)
}
