package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"mercator-hq/relay/pkg/telemetry/logging"
)

// holdingFreer simulates another process owning the port. FreePort closes
// the held listener once releaseAfter calls have been made.
type holdingFreer struct {
	mu           sync.Mutex
	held         net.Listener
	calls        int
	releaseAfter int
}

func (f *holdingFreer) FreePort(_ context.Context, port int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.releaseAfter > 0 && f.calls >= f.releaseAfter && f.held != nil {
		f.held.Close()
		f.held = nil
		return true, nil
	}
	return false, nil
}

func (f *holdingFreer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func occupyPort(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestListen_RetriesAfterFreeingPort(t *testing.T) {
	held, port := occupyPort(t)
	freer := &holdingFreer{held: held, releaseAfter: 1}

	srv, err := New(Config{
		Port:           port,
		BindRetries:    2,
		BindRetryDelay: 10 * time.Millisecond,
		PortFreer:      freer,
		Logger:         logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ln, err := srv.listen(context.Background())
	if err != nil {
		t.Fatalf("expected bind to succeed after freeing, got %v", err)
	}
	defer ln.Close()

	if got := ln.Addr().(*net.TCPAddr).Port; got != port {
		t.Errorf("expected port %d, got %d", port, got)
	}
	if n := freer.callCount(); n != 1 {
		t.Errorf("expected freer to be called once, got %d", n)
	}
}

func TestListen_GivesUpAfterRetries(t *testing.T) {
	_, port := occupyPort(t)
	freer := &holdingFreer{}

	srv, err := New(Config{
		Port:           port,
		BindRetries:    2,
		BindRetryDelay: 5 * time.Millisecond,
		PortFreer:      freer,
		Logger:         logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = srv.listen(context.Background())
	if !errors.Is(err, syscall.EADDRINUSE) {
		t.Fatalf("expected EADDRINUSE, got %v", err)
	}
	if n := freer.callCount(); n != 2 {
		t.Errorf("expected one freer call per retry, got %d", n)
	}
}

func TestListen_NoRetries(t *testing.T) {
	_, port := occupyPort(t)
	freer := &holdingFreer{}

	srv, err := New(Config{
		Port:        port,
		BindRetries: -1,
		PortFreer:   freer,
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := srv.listen(context.Background()); !errors.Is(err, syscall.EADDRINUSE) {
		t.Fatalf("expected EADDRINUSE, got %v", err)
	}
	if n := freer.callCount(); n != 0 {
		t.Errorf("expected no freer calls, got %d", n)
	}
}

func TestListen_OtherErrorsAreNotRetried(t *testing.T) {
	freer := &holdingFreer{}

	// 192.0.2.0/24 is reserved for documentation and never local.
	srv, err := New(Config{
		Host:           "192.0.2.1",
		Port:           8000,
		BindRetries:    3,
		BindRetryDelay: time.Second,
		PortFreer:      freer,
		Logger:         logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	if _, err := srv.listen(context.Background()); err == nil {
		t.Fatal("expected bind to a non-local address to fail")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("expected an immediate failure, took %v", elapsed)
	}
	if n := freer.callCount(); n != 0 {
		t.Errorf("expected no freer calls, got %d", n)
	}
}

func TestStart_ReturnsBindError(t *testing.T) {
	_, port := occupyPort(t)

	srv, err := New(Config{Port: port, BindRetries: -1, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := srv.Start(context.Background()); !errors.Is(err, syscall.EADDRINUSE) {
		t.Fatalf("expected EADDRINUSE from Start, got %v", err)
	}
	select {
	case <-srv.Done():
	default:
		t.Error("expected Done to be closed after a failed Start")
	}
	srv.Stop()
}
