package server

import (
	"net"
	"sync"
	"testing"
	"time"
)

func TestPool_ServesEveryConnection(t *testing.T) {
	p := newPool(8)

	var mu sync.Mutex
	seen := 0
	release := make(chan struct{})
	p.start(2, func(conn net.Conn) {
		<-release
		conn.Close()
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var peers []net.Conn
	for i := 0; i < 6; i++ {
		a, b := net.Pipe()
		peers = append(peers, a)
		p.submit(b)
	}
	defer func() {
		for _, c := range peers {
			c.Close()
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for p.stats().InFlight != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 busy workers, got %+v", p.stats())
		}
		time.Sleep(time.Millisecond)
	}
	if q := p.stats().Queued; q != 4 {
		t.Errorf("expected 4 queued connections, got %d", q)
	}

	close(release)
	p.drain()

	stats := p.stats()
	if stats.Served != 6 || seen != 6 {
		t.Errorf("expected 6 served, got stats %d and %d callbacks", stats.Served, seen)
	}
	if stats.PeakInFlight != 2 {
		t.Errorf("expected peak of 2, got %d", stats.PeakInFlight)
	}
	if stats.InFlight != 0 || stats.Queued != 0 {
		t.Errorf("expected an idle pool, got %+v", stats)
	}
}

func TestPool_DrainWithoutWork(t *testing.T) {
	p := newPool(1)
	p.start(3, func(conn net.Conn) { conn.Close() })

	done := make(chan struct{})
	go func() {
		p.drain()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("drain of an idle pool did not return")
	}
}
