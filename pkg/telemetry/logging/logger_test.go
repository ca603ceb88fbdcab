package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/headers"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid JSON config", config: Config{Level: "info", Format: "json"}},
		{name: "valid text config", config: Config{Level: "debug", Format: "text"}},
		{name: "valid console config", config: Config{Level: "warn", Format: "console"}},
		{name: "defaults", config: Config{}},
		{name: "upper case", config: Config{Level: "ERROR", Format: "JSON"}},
		{name: "invalid log level", config: Config{Level: "loud"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.config.Writer = buf

			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("expected logger, got nil")
			}
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "warn", Format: "text", Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Error("warn record missing")
	}
}

func TestNew_ConsoleDropsTime(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := New(Config{Format: "console", Writer: buf})
	logger.Info("hello")

	if strings.Contains(buf.String(), "time=") {
		t.Errorf("expected no timestamp in console output, got %q", buf.String())
	}
}

func TestContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := New(Config{Format: "json", Writer: buf})

	ctx := WithRequest(context.Background(), "req-42", "GET", "/search")
	logger.InfoContext(ctx, "request completed", "status", 200)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}

	want := map[string]any{
		"request_id": "req-42",
		"method":     "GET",
		"path":       "/search",
		"msg":        "request completed",
	}
	for k, v := range want {
		if record[k] != v {
			t.Errorf("expected %s=%v, got %v", k, v, record[k])
		}
	}
	if GetRequestID(ctx) != "req-42" {
		t.Errorf("expected request ID from context, got %q", GetRequestID(ctx))
	}
}

func TestContextFields_Trace(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := New(Config{Format: "json", Writer: buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.With("component", "test").InfoContext(ctx, "traced")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if record["trace_id"] != traceID.String() || record["span_id"] != spanID.String() {
		t.Errorf("expected trace fields, got %v", record)
	}
	if record["component"] != "test" {
		t.Errorf("expected With attrs kept, got %v", record)
	}
}

func TestRedactHeaders(t *testing.T) {
	h := headers.FromPairs(
		"Authorization", "Bearer secret",
		"Cookie", "session=abc",
		"Content-Type", "text/plain",
	)

	got := RedactHeaders(h)
	if got["authorization"] != Redacted || got["cookie"] != Redacted {
		t.Errorf("expected credentials redacted, got %v", got)
	}
	if got["content-type"] != "text/plain" {
		t.Errorf("expected ordinary header kept, got %v", got)
	}
	if h.Get("authorization") != "Bearer secret" {
		t.Error("RedactHeaders modified its input")
	}

	if !IsSensitiveHeader(" Set-Cookie ") || IsSensitiveHeader("accept") {
		t.Error("unexpected IsSensitiveHeader result")
	}
}

func TestHeadersAttr(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	logger.Info("inbound", HeadersAttr("headers", headers.FromPairs("X-Api-Key", "k", "Accept", "*/*")))

	var record struct {
		Headers map[string]string `json:"headers"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if record.Headers["x-api-key"] != Redacted || record.Headers["accept"] != "*/*" {
		t.Errorf("unexpected logged headers %v", record.Headers)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
