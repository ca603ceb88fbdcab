package testutil

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

// TCPPair returns both ends of a loopback TCP connection. Unlike net.Pipe,
// the server end has a file descriptor, so sendfile can run for real. Both
// ends are closed by t's cleanup.
func TCPPair(t testing.TB) (server, client net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	server, ok := <-accepted
	if !ok {
		client.Close()
		t.Fatal("accept failed")
	}

	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

// Fixture writes a file of size bytes whose content is a repeating,
// position-dependent pattern, so any misplaced range shows up as a
// mismatch.
func Fixture(t testing.TB, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*7 + i/251) % 256)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path, data
}
