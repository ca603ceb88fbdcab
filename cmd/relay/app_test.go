package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/internal/testutil"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/telemetry/logging"
)

// startApp serves the demo application on a free loopback port and stops
// it when the test ends.
func startApp(t *testing.T, cfg *config.Config) *server.Server {
	t.Helper()

	cfg.Server.ListenAddress = "127.0.0.1:0"
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	sc, err := serverConfig(cfg, a, logging.Discard())
	if err != nil {
		t.Fatalf("serverConfig() error = %v", err)
	}
	srv, err := server.New(sc)
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(context.Background()) }()
	select {
	case <-srv.Ready():
	case err := <-errCh:
		t.Fatalf("Start() error = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		srv.Stop()
		if err := <-errCh; err != nil {
			t.Errorf("Start() returned %v", err)
		}
	})
	return srv
}

func get(t *testing.T, srv *server.Server, path string) (*http.Response, []byte) {
	t.Helper()
	client := &http.Client{Timeout: 10 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + srv.Addr().String() + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body failed: %v", err)
	}
	return resp, body
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", body, err)
	}
	return out
}

func TestApp_Echo(t *testing.T) {
	srv := startApp(t, config.Default())

	req, err := http.NewRequest(http.MethodPost, "http://"+srv.Addr().String()+"/things/7?a=1&tags[]=x&tags[]=y", strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Test", "yes")
	client := &http.Client{Timeout: 10 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	payload := decode(t, body)
	if payload["path"] != "/things/7" {
		t.Errorf("expected path /things/7, got %v", payload["path"])
	}
	if payload["method"] != "POST" {
		t.Errorf("expected method POST, got %v", payload["method"])
	}
	if payload["body"] != "hello" {
		t.Errorf("expected body hello, got %v", payload["body"])
	}

	params, _ := payload["query_params"].(map[string]any)
	if params["a"] != "1" {
		t.Errorf("expected a=1, got %v", params["a"])
	}
	if tags, _ := params["tags"].([]any); len(tags) != 2 || tags[0] != "x" || tags[1] != "y" {
		t.Errorf("expected tags [x y], got %v", params["tags"])
	}

	hdrs, _ := payload["headers"].(map[string]any)
	if hdrs["x-test"] != "yes" {
		t.Errorf("expected x-test header yes, got %v", hdrs["x-test"])
	}
}

func TestApp_SearchMissingQuery(t *testing.T) {
	srv := startApp(t, config.Default())

	for _, path := range []string{"/search", "/search?q="} {
		t.Run(path, func(t *testing.T) {
			resp, body := get(t, srv, path)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if got := decode(t, body)["error"]; got != "Missing ?q= parameter" {
				t.Errorf("expected missing parameter error, got %v", got)
			}
		})
	}
}

func TestApp_SearchProxiesUpstream(t *testing.T) {
	upstream := testutil.NewMockUpstream(t.Cleanup)
	upstream.SetResponse("/", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/x-javascript"},
		Chunks:     []string{`{"Heading":`, `"Go"}`},
		ChunkDelay: 10 * time.Millisecond,
	})

	cfg := config.Default()
	cfg.Fetch.SearchURL = upstream.URL() + "/"
	srv := startApp(t, cfg)

	resp, body := get(t, srv, "/search?q=golang+gophers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if string(body) != `{"Heading":"Go"}` {
		t.Errorf("expected relayed body, got %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-javascript" {
		t.Errorf("expected upstream content type, got %q", ct)
	}

	rec, ok := upstream.LastRequest()
	if !ok {
		t.Fatal("upstream saw no request")
	}
	for _, want := range []string{"q=golang+gophers", "format=json", "no_html=1"} {
		if !strings.Contains(rec.Query, want) {
			t.Errorf("expected upstream query to contain %q, got %q", want, rec.Query)
		}
	}
}

func TestApp_SearchUpstreamDown(t *testing.T) {
	upstream := testutil.NewMockUpstream(nil)
	dead := upstream.URL() + "/"
	upstream.Close()

	cfg := config.Default()
	cfg.Fetch.SearchURL = dead
	srv := startApp(t, cfg)

	resp, body := get(t, srv, "/search?q=x")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", resp.StatusCode, body)
	}
	if !strings.HasPrefix(string(body), "Bad Gateway") {
		t.Errorf("expected Bad Gateway text, got %q", body)
	}
}

func TestApp_Files(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello, relay"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, strategy := range []string{"zero-copy", "buffered", "chunked"} {
		t.Run(strategy, func(t *testing.T) {
			cfg := config.Default()
			cfg.Files.Root = root
			cfg.Files.Strategy = strategy
			cfg.Files.ChunkSize = 4
			srv := startApp(t, cfg)

			tests := []struct {
				path     string
				status   int
				wantBody string
			}{
				{path: "/files/hello.txt", status: http.StatusOK, wantBody: "hello, relay"},
				{path: "/files/missing.txt", status: http.StatusNotFound},
				{path: "/files/sub", status: http.StatusBadRequest},
			}
			for _, tc := range tests {
				resp, body := get(t, srv, tc.path)
				if resp.StatusCode != tc.status {
					t.Errorf("%s: expected %d, got %d", tc.path, tc.status, resp.StatusCode)
				}
				if tc.wantBody != "" && string(body) != tc.wantBody {
					t.Errorf("%s: expected body %q, got %q", tc.path, tc.wantBody, body)
				}
			}
		})
	}
}

func TestApp_FilesStayUnderRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "public")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("top-secret-content"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Files.Root = root
	srv := startApp(t, cfg)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	// Raw request so the client does not clean the dot segments.
	if _, err := io.WriteString(conn, "GET /files/../../secret.txt HTTP/1.1\r\nHost: x\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("reading response failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "top-secret-content") {
		t.Errorf("expected the file outside the root to stay hidden, got %q", body)
	}
}

func TestApp_ErrorHandler(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantTrace bool
	}{
		{name: "production", debug: false, wantTrace: false},
		{name: "debug", debug: true, wantTrace: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Server.Debug = tt.debug
			srv := startApp(t, cfg)

			conn, err := net.Dial("tcp", srv.Addr().String())
			if err != nil {
				t.Fatalf("dial failed: %v", err)
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

			// The declared body is over the echo limit, so nothing past the
			// head needs to be sent.
			raw := "POST /upload?x=1 HTTP/1.1\r\nHost: x\r\nContent-Length: 4194304\r\n\r\n"
			if _, err := io.WriteString(conn, raw); err != nil {
				t.Fatal(err)
			}
			resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
			if err != nil {
				t.Fatalf("reading response failed: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != http.StatusRequestEntityTooLarge {
				t.Fatalf("expected 413, got %d", resp.StatusCode)
			}

			payload := decode(t, body)
			if code, _ := payload["status_code"].(float64); int(code) != http.StatusRequestEntityTooLarge {
				t.Errorf("expected status_code 413, got %v", payload["status_code"])
			}
			if payload["path"] != "/upload" {
				t.Errorf("expected path /upload, got %v", payload["path"])
			}
			if payload["method"] != "POST" {
				t.Errorf("expected method POST, got %v", payload["method"])
			}
			if params, _ := payload["query_params"].(map[string]any); params["x"] != "1" {
				t.Errorf("expected query x=1, got %v", payload["query_params"])
			}
			if id, _ := payload["request_id"].(string); id == "" {
				t.Error("expected a request id")
			}

			trace, present := payload["traceback"]
			if !present {
				t.Fatal("expected traceback key to be present")
			}
			if tt.wantTrace && trace == nil {
				t.Error("expected a traceback in debug mode")
			}
			if !tt.wantTrace && trace != nil {
				t.Errorf("expected null traceback, got %v", trace)
			}
		})
	}
}

func TestNewApp_InvalidStrategy(t *testing.T) {
	cfg := config.Default()
	cfg.Files.Strategy = "teleport"
	if _, err := newApp(cfg); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
