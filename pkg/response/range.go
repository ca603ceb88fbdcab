package response

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNoRange means the Range header is absent or not in a supported
	// form; the whole resource is served.
	ErrNoRange = errors.New("no usable range")

	// ErrUnsatisfiable means the range lies outside the resource.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// RangeSpec is a validated, inclusive byte range within a resource of
// Total bytes. 0 <= Start <= End <= Total-1 always holds.
type RangeSpec struct {
	Start int64
	End   int64
	Total int64
}

// Length returns the number of bytes covered.
func (r RangeSpec) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value.
func (r RangeSpec) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// UnsatisfiedRange formats the Content-Range value sent with a 416.
func UnsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ParseRange interprets a single-range header against a resource of size
// bytes. Accepted forms are bytes=A-B, bytes=A- and bytes=-N. Anything else
// (lists, signs, other units) returns ErrNoRange. A well-formed range that
// starts past its end or at/after size returns ErrUnsatisfiable. An end
// past the last byte is clamped.
func ParseRange(header string, size int64) (RangeSpec, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return RangeSpec{}, ErrNoRange
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok || (first == "" && last == "") {
		return RangeSpec{}, ErrNoRange
	}

	var start, end int64
	switch {
	case first == "":
		n, ok := parseDigits(last)
		if !ok {
			return RangeSpec{}, ErrNoRange
		}
		start = max(size-n, 0)
		end = size - 1
	case last == "":
		n, ok := parseDigits(first)
		if !ok {
			return RangeSpec{}, ErrNoRange
		}
		start = n
		end = size - 1
	default:
		a, okA := parseDigits(first)
		b, okB := parseDigits(last)
		if !okA || !okB {
			return RangeSpec{}, ErrNoRange
		}
		start, end = a, b
	}

	if start > end || start >= size {
		return RangeSpec{}, ErrUnsatisfiable
	}
	if end > size-1 {
		end = size - 1
	}

	return RangeSpec{Start: start, End: end, Total: size}, nil
}

// parseDigits accepts only ASCII digits, so "+5" and " 5" are rejected.
func parseDigits(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
