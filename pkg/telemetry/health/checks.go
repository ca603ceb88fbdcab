package health

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/relay/pkg/server"
)

var (
	// ErrNotListening is reported before the listener is bound.
	ErrNotListening = errors.New("server is not listening yet")
	// ErrStopped is reported once the server has shut down.
	ErrStopped = errors.New("server has stopped")
)

// Lifecycle is the part of *server.Server the listener check needs.
type Lifecycle interface {
	Ready() <-chan struct{}
	Done() <-chan struct{}
}

// ListenerCheck passes while the server is bound and not yet stopped.
func ListenerCheck(srv Lifecycle) CheckFunc {
	return func(context.Context) error {
		select {
		case <-srv.Done():
			return ErrStopped
		default:
		}
		select {
		case <-srv.Ready():
			return nil
		default:
			return ErrNotListening
		}
	}
}

// QueueCheck fails when more than maxQueued accepted connections are
// waiting for a worker. A non-positive maxQueued disables the check.
func QueueCheck(stats func() server.Stats, maxQueued int64) CheckFunc {
	return func(context.Context) error {
		if maxQueued <= 0 {
			return nil
		}
		if q := stats().Queued; q > maxQueued {
			return fmt.Errorf("%d connections waiting for a worker (limit %d)", q, maxQueued)
		}
		return nil
	}
}
