package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/headers"
	"mercator-hq/relay/pkg/query"
	"mercator-hq/relay/pkg/response"
	"mercator-hq/relay/pkg/server"
)

// maxEchoBody caps the request body the echo endpoint reads.
const maxEchoBody = 1 << 20

const filesPrefix = "/files/"

// app is the demo application served by "relay run": /search proxies a
// DuckDuckGo instant answer query, /files/ serves files below the
// configured root, and every other path echoes the request back as JSON.
type app struct {
	searchURL string
	proxy     response.ProxyOptions

	filesRoot string
	fileOpts  response.FileOptions
}

func newApp(cfg *config.Config) (*app, error) {
	strategy, err := response.ParseStrategy(cfg.Files.Strategy)
	if err != nil {
		return nil, err
	}
	return &app{
		searchURL: cfg.Fetch.SearchURL,
		proxy: response.ProxyOptions{
			Timeout:   cfg.Fetch.Timeout,
			ChunkSize: cfg.Fetch.ChunkSize,
		},
		filesRoot: cfg.Files.Root,
		fileOpts: response.FileOptions{
			Strategy:   strategy,
			ChunkSize:  cfg.Files.ChunkSize,
			ChunkDelay: cfg.Files.ChunkDelay,
		},
	}, nil
}

// Handle implements server.HandlerFunc.
func (a *app) Handle(c *server.Context) error {
	switch {
	case c.Path == "/search":
		return a.search(c)
	case strings.HasPrefix(c.Path, filesPrefix):
		return a.file(c)
	default:
		return a.echo(c)
	}
}

func (a *app) search(c *server.Context) error {
	q := c.Query.First("q", "")
	if q == "" {
		return c.Response.JSON(http.StatusBadRequest, map[string]string{"error": "Missing ?q= parameter"})
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("no_html", "1")
	target := a.searchURL + "?" + params.Encode()

	c.Logger().Debug("proxying search", "query", q)
	return c.Response.StreamProxy(c.Context(), target, a.proxy)
}

func (a *app) file(c *server.Context) error {
	rel := path.Clean("/" + strings.TrimPrefix(c.Path, filesPrefix))
	full := filepath.Join(a.filesRoot, filepath.FromSlash(rel))
	return c.Response.File(full, a.fileOpts)
}

// echoPayload is the JSON document the echo endpoint returns.
type echoPayload struct {
	Path        string         `json:"path"`
	QueryParams query.Params   `json:"query_params"`
	Headers     headers.Header `json:"headers"`
	Method      string         `json:"method"`
	Body        string         `json:"body"`
}

func (a *app) echo(c *server.Context) error {
	body, err := c.ReadBody(maxEchoBody)
	if err != nil {
		return err
	}
	return c.Response.JSON(http.StatusOK, echoPayload{
		Path:        c.Path,
		QueryParams: c.Query,
		Headers:     c.Header,
		Method:      c.Method,
		Body:        string(body),
	})
}

// errorPayload is the JSON error document. Traceback is only filled in
// debug mode.
type errorPayload struct {
	StatusCode  int            `json:"status_code"`
	Message     string         `json:"message"`
	Traceback   *string        `json:"traceback"`
	RequestID   string         `json:"request_id,omitempty"`
	Path        string         `json:"path"`
	QueryParams query.Params   `json:"query_params"`
	Headers     headers.Header `json:"headers"`
	Method      string         `json:"method"`
}

// handleError implements server.ErrorHandlerFunc.
func (a *app) handleError(c *server.Context, e *server.Error) error {
	payload := errorPayload{
		StatusCode:  e.Status,
		Message:     e.Message,
		RequestID:   c.RequestID,
		Path:        c.Path,
		QueryParams: c.Query,
		Headers:     c.Header,
		Method:      c.Method,
	}
	if e.Debug {
		trace := e.Trace()
		if trace == "" && e.Err != nil {
			trace = fmt.Sprintf("%+v", e.Err)
		}
		payload.Traceback = &trace
	}
	c.Logger().Log(c.Context(), slog.LevelDebug, "rendering error response", "status", e.Status)
	return c.Response.JSON(e.Status, payload)
}
