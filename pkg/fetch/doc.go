// Package fetch performs single outbound HTTP exchanges on behalf of request
// handlers.
//
// Every upstream status, 4xx and 5xx included, is returned as a response.
// Only transport failures are errors, and they are always one of two types:
//
//   - *GatewayError: DNS failure, refused or reset connection, TLS failure
//   - *TimeoutError: no response, or a stalled body, within the timeout
//
// Hop-by-hop headers are stripped from the outgoing request and from the
// returned response headers. The active trace context is injected as
// W3C traceparent.
package fetch
