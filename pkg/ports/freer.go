// Package ports finds and stops processes that hold a TCP port.
//
// The dispatcher uses a Freer when a bind fails with "address already in
// use", which typically means an earlier instance of the server is still
// running (for example during hot reload).
package ports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

const statusListen = "LISTEN"

// Freer kills the processes listening on a port. It never kills the
// calling process.
type Freer struct {
	logger *slog.Logger
	self   int32

	connections func(ctx context.Context, kind string) ([]net.ConnectionStat, error)
	kill        func(ctx context.Context, pid int32) error
}

// New creates a Freer backed by the host's process table.
func New(logger *slog.Logger) *Freer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Freer{
		logger:      logger.With("component", "ports"),
		self:        int32(os.Getpid()),
		connections: net.ConnectionsWithContext,
		kill:        killProcess,
	}
}

// Holders returns the IDs of processes with a TCP socket listening on port,
// excluding the current process.
func (f *Freer) Holders(ctx context.Context, port int) ([]int32, error) {
	conns, err := f.connections(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	seen := make(map[int32]bool)
	var pids []int32
	for _, c := range conns {
		if c.Status != statusListen || int(c.Laddr.Port) != port {
			continue
		}
		if c.Pid <= 0 || c.Pid == f.self || seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true
		pids = append(pids, c.Pid)
	}
	return pids, nil
}

// FreePort kills every other process listening on port. It reports whether
// at least one process was killed; kill failures are joined into the error.
func (f *Freer) FreePort(ctx context.Context, port int) (bool, error) {
	pids, err := f.Holders(ctx, port)
	if err != nil {
		return false, err
	}
	if len(pids) == 0 {
		f.logger.Debug("no other process is listening", "port", port)
		return false, nil
	}

	freed := false
	var errs []error
	for _, pid := range pids {
		if err := f.kill(ctx, pid); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill pid %d: %w", pid, err))
			continue
		}
		freed = true
		f.logger.Info("killed process holding port", "port", port, "pid", pid)
	}
	return freed, errors.Join(errs...)
}

func killProcess(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}
