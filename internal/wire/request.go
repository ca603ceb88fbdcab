// Package wire reads HTTP/1.1 request heads off a connection and frames the
// request body.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http/httputil"
	"strconv"
	"strings"

	"mercator-hq/relay/pkg/headers"
)

// Default limits.
const (
	DefaultMaxLineBytes   = 65536
	DefaultMaxHeaderBytes = 1 << 20
)

var (
	// ErrLineTooLong means the request line exceeded the line limit.
	ErrLineTooLong = errors.New("request line too long")

	// ErrHeaderTooLarge means the header block exceeded its byte limit.
	ErrHeaderTooLarge = errors.New("request header fields too large")

	// ErrMalformed means the request line or headers could not be parsed.
	ErrMalformed = errors.New("malformed request")

	// ErrVersion means the protocol version is not HTTP/1.x.
	ErrVersion = errors.New("unsupported HTTP version")
)

// Limits bounds what ReadRequest will buffer.
type Limits struct {
	// MaxLineBytes bounds the request line including its terminator
	MaxLineBytes int

	// MaxHeaderBytes bounds the whole header block
	MaxHeaderBytes int
}

// Request is a parsed request head plus a framed body reader.
type Request struct {
	Method string
	Target string
	Proto  string
	Major  int
	Minor  int
	Header headers.Header

	// Body yields exactly the request body: Content-Length bytes, the
	// de-chunked stream, or nothing.
	Body io.Reader

	// ContentLength is -1 for chunked bodies.
	ContentLength int64
}

// ProtocolError wraps one of the sentinel errors with detail.
type ProtocolError struct {
	Kind   error
	Detail string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the sentinel kind.
func (e *ProtocolError) Unwrap() error {
	return e.Kind
}

func protoErr(kind error, format string, args ...any) error {
	return &ProtocolError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ReadRequest reads one request head from br. It returns io.EOF when the
// peer closed the connection before sending anything.
func ReadRequest(br *bufio.Reader, limits Limits) (*Request, error) {
	if limits.MaxLineBytes <= 0 {
		limits.MaxLineBytes = DefaultMaxLineBytes
	}
	if limits.MaxHeaderBytes <= 0 {
		limits.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	var line []byte
	var err error
	for {
		line, err = readLine(br, limits.MaxLineBytes, ErrLineTooLong)
		if err != nil {
			return nil, err
		}
		// Blank lines ahead of the request line are tolerated.
		if len(line) > 0 {
			break
		}
	}

	req, err := parseRequestLine(string(line))
	if err != nil {
		return nil, err
	}

	req.Header, err = readHeader(br, limits.MaxHeaderBytes)
	if err != nil {
		return nil, err
	}

	if err := frameBody(req, br); err != nil {
		return nil, err
	}
	return req, nil
}

func parseRequestLine(line string) (*Request, error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return nil, protoErr(ErrMalformed, "bad request line %q", truncate(line))
	}
	method, target, proto := parts[0], parts[1], parts[2]

	if method == "" || !isToken(method) {
		return nil, protoErr(ErrMalformed, "bad method %q", truncate(method))
	}
	if target == "" {
		return nil, protoErr(ErrMalformed, "empty request target")
	}

	major, minor, ok := parseVersion(proto)
	if !ok {
		return nil, protoErr(ErrMalformed, "bad protocol %q", truncate(proto))
	}
	if major != 1 {
		return nil, protoErr(ErrVersion, "%s", proto)
	}

	return &Request{
		Method: method,
		Target: target,
		Proto:  proto,
		Major:  major,
		Minor:  minor,
	}, nil
}

func readHeader(br *bufio.Reader, budget int) (headers.Header, error) {
	h := headers.New()
	for {
		line, err := readLine(br, budget, ErrHeaderTooLarge)
		if err != nil {
			if err == io.EOF {
				return nil, protoErr(ErrMalformed, "unexpected end of header block")
			}
			return nil, err
		}
		budget -= len(line) + 2
		if len(line) == 0 {
			return h, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, protoErr(ErrMalformed, "obsolete header line folding")
		}

		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok || len(name) == 0 || !isToken(string(name)) {
			return nil, protoErr(ErrMalformed, "bad header line %q", truncate(string(line)))
		}
		h.Add(string(name), strings.TrimSpace(string(value)))
	}
}

func frameBody(req *Request, br *bufio.Reader) error {
	te, hasTE := req.Header.Lookup("transfer-encoding")
	cl, hasCL := req.Header.Lookup("content-length")

	switch {
	case hasTE && hasCL:
		return protoErr(ErrMalformed, "both Transfer-Encoding and Content-Length present")
	case hasTE:
		codings := strings.Split(te, ",")
		if !strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked") {
			return protoErr(ErrMalformed, "unsupported transfer coding %q", te)
		}
		req.Body = httputil.NewChunkedReader(br)
		req.ContentLength = -1
	case hasCL:
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return protoErr(ErrMalformed, "bad Content-Length %q", cl)
		}
		req.Body = io.LimitReader(br, n)
		req.ContentLength = n
	default:
		req.Body = bytes.NewReader(nil)
	}
	return nil
}

// readLine reads one CRLF- or LF-terminated line of at most limit bytes
// including the terminator, and returns it without the terminator.
func readLine(br *bufio.Reader, limit int, tooLong error) ([]byte, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(line)+len(chunk) > limit {
			return nil, protoErr(tooLong, "limit is %d bytes", limit)
		}
		line = append(line, chunk...)

		switch {
		case err == nil:
			line = bytes.TrimSuffix(line, []byte("\n"))
			return bytes.TrimSuffix(line, []byte("\r")), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) == 0:
			return nil, io.EOF
		case errors.Is(err, io.EOF):
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

func parseVersion(proto string) (int, int, bool) {
	rest, ok := strings.CutPrefix(proto, "HTTP/")
	if !ok {
		return 0, 0, false
	}
	majorStr, minorStr, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, 0, false
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 || len(majorStr) > 3 {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 || len(minorStr) > 3 {
		return 0, 0, false
	}
	return major, minor, true
}

// isToken reports whether s consists only of RFC 7230 tchar bytes.
func isToken(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return len(s) > 0
}

func truncate(s string) string {
	const keep = 64
	if len(s) <= keep {
		return s
	}
	return s[:keep] + "..."
}
