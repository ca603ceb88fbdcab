package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"mercator-hq/relay/pkg/headers"
)

// BodyKind tags the payload carried by a Body.
type BodyKind int

const (
	// KindRaw is an opaque byte payload.
	KindRaw BodyKind = iota
	// KindText is a UTF-8 string payload.
	KindText
	// KindStructured is a value encoded as JSON on the wire.
	KindStructured
)

// contentTypes maps each body kind to the Content-Type used when the
// response does not carry one.
var contentTypes = map[BodyKind]string{
	KindRaw:        "application/octet-stream",
	KindText:       "text/plain; charset=utf-8",
	KindStructured: "application/json; charset=utf-8",
}

const contentTypeHTML = "text/html; charset=utf-8"

// String returns the kind name.
func (k BodyKind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("BodyKind(%d)", int(k))
	}
}

// Body is a response payload: exactly one of Raw, Text or Value is
// meaningful, selected by Kind.
type Body struct {
	Kind  BodyKind
	Raw   []byte
	Text  string
	Value any
}

// ContentType returns the default Content-Type for the body kind.
func (b Body) ContentType() string {
	return contentTypes[b.Kind]
}

// Encode renders the body to wire bytes.
func (b Body) Encode() ([]byte, error) {
	switch b.Kind {
	case KindText:
		return []byte(b.Text), nil
	case KindStructured:
		return encodeJSON(b.Value)
	default:
		return b.Raw, nil
	}
}

// Response is a fully materialized response that can be built up by a
// handler and sent with Writer.Rewrite.
//
//	resp := response.New(http.StatusOK).
//		SetHeader("X-Custom", "1").
//		SetJSON(map[string]any{"ok": true})
//	return ctx.Response.Rewrite(resp)
type Response struct {
	Status int
	Header headers.Header
	Body   Body
}

// New returns an empty response with the given status. A zero status
// means 200.
func New(status int) *Response {
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{Status: status, Header: headers.New()}
}

// SetHeader sets a header and returns the response for chaining.
func (r *Response) SetHeader(name, value string) *Response {
	if r.Header == nil {
		r.Header = headers.New()
	}
	r.Header.Set(name, value)
	return r
}

// SetBody sets a raw byte payload.
func (r *Response) SetBody(b []byte) *Response {
	r.Body = Body{Kind: KindRaw, Raw: b}
	return r
}

// SetText sets a UTF-8 text payload.
func (r *Response) SetText(s string) *Response {
	r.Body = Body{Kind: KindText, Text: s}
	return r
}

// SetJSON sets a structured payload and its JSON Content-Type.
func (r *Response) SetJSON(v any) *Response {
	r.Body = Body{Kind: KindStructured, Value: v}
	return r.SetHeader("Content-Type", contentTypes[KindStructured])
}

// encodeJSON marshals v without HTML escaping and without the trailing
// newline json.Encoder appends.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode JSON body: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
