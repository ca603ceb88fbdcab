package query

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"mercator-hq/relay/pkg/headers"
)

// MaxFormBytes is the largest urlencoded body ParseForm will read.
const MaxFormBytes = 65536

// arrayMarker marks a key whose values are collected into a list.
const arrayMarker = "[]"

// Value is a single query parameter. It holds either one string or, for keys
// written with the array marker (?id[]=1&id[]=2), an ordered list of strings.
type Value struct {
	values []string
	array  bool
}

// Single returns a scalar Value.
func Single(s string) Value {
	return Value{values: []string{s}}
}

// List returns an array Value.
func List(items ...string) Value {
	return Value{values: append([]string(nil), items...), array: true}
}

// IsArray reports whether the value came from an array-marked key.
func (v Value) IsArray() bool { return v.array }

// String returns the scalar value, or the first element of an array.
func (v Value) String() string {
	if len(v.values) == 0 {
		return ""
	}
	return v.values[0]
}

// Strings returns every value. Scalars yield a one-element slice.
func (v Value) Strings() []string {
	return append([]string(nil), v.values...)
}

// MarshalJSON encodes scalars as strings and arrays as string lists.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.array {
		if v.values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.values)
	}
	return json.Marshal(v.String())
}

// Params maps parameter names to values.
type Params map[string]Value

// First returns the first value for key, or def when the key is missing,
// the array is empty, or the scalar is blank.
func (p Params) First(key, def string) string {
	v, ok := p[key]
	if !ok || len(v.values) == 0 {
		return def
	}
	if !v.array && v.values[0] == "" {
		return def
	}
	return v.values[0]
}

// Encode renders the parameters as a urlencoded string with keys sorted.
// Array values are written as repeated key[]=v pairs.
func (p Params) Encode() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v := p[k]
		name := k
		if v.array {
			name += arrayMarker
		}
		for _, item := range v.values {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(name))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(item))
		}
	}
	return sb.String()
}

// Parse splits a request target into its path and query parameters.
// Blank values are kept, pairs without '=' count as blank, and invalid
// percent escapes are left as written.
func Parse(target string) (string, Params) {
	path, rawQuery, found := strings.Cut(target, "?")
	if !found {
		return path, Params{}
	}
	return path, ParseString(rawQuery)
}

// ParseString parses a urlencoded string such as a query or form body.
// A key ending in [] collects all its values under the bare name; any other
// key keeps its first value. When both forms of the same name appear, the
// form whose first occurrence comes later replaces the earlier one.
func ParseString(raw string) Params {
	type entry struct {
		key    string
		values []string
	}

	var order []*entry
	index := make(map[string]*entry)

	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name = unescape(name)
		value = unescape(value)

		e, ok := index[name]
		if !ok {
			e = &entry{key: name}
			index[name] = e
			order = append(order, e)
		}
		e.values = append(e.values, value)
	}

	params := make(Params, len(order))
	for _, e := range order {
		if bare, ok := strings.CutSuffix(e.key, arrayMarker); ok {
			params[bare] = Value{values: e.values, array: true}
			continue
		}
		params[e.key] = Single(e.values[0])
	}
	return params
}

// ParseForm reads an application/x-www-form-urlencoded body of exactly
// Content-Length bytes. A missing, invalid, non-positive or oversized length
// yields empty params without touching the body.
func ParseForm(body io.Reader, h headers.Header) (Params, error) {
	raw := h.Get("content-length")
	if raw == "" {
		return Params{}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 || n > MaxFormBytes {
		return Params{}, nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(body, buf); err != nil {
		return nil, fmt.Errorf("failed to read form body: %w", err)
	}
	return ParseString(strings.ToValidUTF8(string(buf), "�")), nil
}

func unescape(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return strings.ReplaceAll(s, "+", " ")
}
