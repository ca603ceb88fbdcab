package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PortFreer gets a chance to release a port held by another process before
// a bind is retried.
type PortFreer interface {
	FreePort(ctx context.Context, port int) (bool, error)
}

// listen binds the listening socket. A bind that fails with EADDRINUSE is
// retried BindRetries times, calling the port freer and then waiting
// BindRetryDelay before each retry. Any other error is returned at once.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	addr := s.cfg.Address()
	var lc net.ListenConfig

	attempt := 0
	bind := func() (net.Listener, error) {
		attempt++
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("address already in use, retrying bind",
			"address", addr,
			"attempt", attempt,
			"retry_in", wait.String(),
		)
		if s.cfg.PortFreer == nil || s.cfg.Port == 0 {
			return
		}
		freed, ferr := s.cfg.PortFreer.FreePort(ctx, s.cfg.Port)
		switch {
		case ferr != nil:
			s.logger.Warn("could not free port", "port", s.cfg.Port, "error", ferr)
		case freed:
			s.logger.Info("freed port held by another process", "port", s.cfg.Port)
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.BindRetryDelay), uint64(s.cfg.BindRetries)),
		ctx,
	)

	ln, err := backoff.RetryNotifyWithData(bind, policy, notify)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return ln, nil
}
