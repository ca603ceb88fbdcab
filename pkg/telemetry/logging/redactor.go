package logging

import (
	"log/slog"
	"strings"

	"mercator-hq/relay/pkg/headers"
)

// Redacted replaces credential values in logged headers.
const Redacted = "[REDACTED]"

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
}

// IsSensitiveHeader reports whether a header's value must not be logged.
func IsSensitiveHeader(name string) bool {
	return sensitiveHeaders[strings.ToLower(strings.TrimSpace(name))]
}

// RedactHeaders returns a copy of h with credential values replaced.
func RedactHeaders(h headers.Header) map[string]string {
	out := make(map[string]string, h.Len())
	for name, value := range h {
		if sensitiveHeaders[name] {
			value = Redacted
		}
		out[name] = value
	}
	return out
}

// HeadersAttr logs h as a group under key, redacted.
func HeadersAttr(key string, h headers.Header) slog.Attr {
	redacted := RedactHeaders(h)
	attrs := make([]any, 0, len(redacted))
	for _, name := range h.Keys() {
		attrs = append(attrs, slog.String(name, redacted[name]))
	}
	return slog.Group(key, attrs...)
}
