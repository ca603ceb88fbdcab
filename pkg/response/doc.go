// Package response is the response delivery engine: it writes exactly one
// HTTP/1.1 response per connection.
//
// # Direct responses
//
// HTML, Text, JSON, Redirect and Rewrite write status, headers and body in
// one pass. Every response carries Connection: close.
//
// # File transfer
//
// File serves a regular file with RFC 7233 single-range support. Three
// strategies produce identical bytes:
//
//   - ZeroCopy: sendfile(2) on the socket descriptor, falling back to
//     Buffered when the connection or platform cannot do it
//   - Buffered: one read of the whole range, one write
//   - Chunked: fixed-size reads with an optional delay between chunks
//
// # Proxying
//
// StreamProxy relays an upstream response chunk by chunk. Upstream transport
// failures become 502 and timeouts 504. Fetch does the same for a buffered
// exchange and returns a Response for Rewrite.
package response
