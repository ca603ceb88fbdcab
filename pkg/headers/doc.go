// Package headers provides the case-insensitive header container shared by the
// request parser, the response writer and the upstream fetch client.
//
// Keys are stored lower-cased. The package also defines the hop-by-hop header
// sets that must never cross a proxy boundary:
//
//	h := headers.FromPairs("Host", "example.com", "X-Trace", "abc")
//	h.ProxySafe() // map[x-trace:abc]
package headers
