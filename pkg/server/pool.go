package server

import (
	"net"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Stats is a snapshot of the worker pool counters.
type Stats struct {
	// InFlight is the number of connections being served right now.
	InFlight int64
	// Queued is the number of accepted connections waiting for a worker.
	Queued int64
	// Served counts connections whose worker has finished.
	Served uint64
	// PeakInFlight is the highest InFlight seen since start.
	PeakInFlight int64
}

// pool runs a fixed number of workers over a queue of accepted
// connections. Submitting blocks once the queue is full, so a saturated
// pool slows the accept loop down instead of dropping connections.
type pool struct {
	conns chan net.Conn
	group errgroup.Group

	inFlight atomic.Int64
	queued   atomic.Int64
	served   atomic.Uint64
	peak     atomic.Int64
}

func newPool(queueDepth int) *pool {
	return &pool{conns: make(chan net.Conn, queueDepth)}
}

// start launches workers goroutines that hand each connection to serve.
func (p *pool) start(workers int, serve func(net.Conn)) {
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for conn := range p.conns {
				p.queued.Add(-1)
				p.enter()
				serve(conn)
				p.inFlight.Add(-1)
				p.served.Add(1)
			}
			return nil
		})
	}
}

func (p *pool) enter() {
	n := p.inFlight.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

// submit queues conn, blocking while the queue is full.
func (p *pool) submit(conn net.Conn) {
	p.queued.Add(1)
	p.conns <- conn
}

// drain stops intake and waits until every queued and in-flight
// connection has been served.
func (p *pool) drain() {
	close(p.conns)
	_ = p.group.Wait()
}

func (p *pool) stats() Stats {
	return Stats{
		InFlight:     p.inFlight.Load(),
		Queued:       p.queued.Load(),
		Served:       p.served.Load(),
		PeakInFlight: p.peak.Load(),
	}
}
