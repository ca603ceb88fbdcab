package devreload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Defaults applied by New.
const (
	DefaultDebounce    = 200 * time.Millisecond
	DefaultStopTimeout = 5 * time.Second
)

// PortFreer releases a TCP port held by another process. *ports.Freer
// implements it.
type PortFreer interface {
	FreePort(ctx context.Context, port int) (bool, error)
}

// Config configures a Reloader.
type Config struct {
	// Paths are watched recursively. Files may be listed directly.
	Paths []string
	// Extensions limits which files trigger a restart, e.g. ".go". Empty
	// means every file.
	Extensions []string
	Debounce   time.Duration

	// Command is the program and its arguments.
	Command []string
	Dir     string
	// Env is appended to the current environment.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer

	// StopTimeout is how long a child gets between SIGTERM and SIGKILL.
	StopTimeout time.Duration

	// Port, if set together with Freer, is freed before each start.
	Port  int
	Freer PortFreer

	Logger *slog.Logger
}

// Reloader runs Config.Command and restarts it on file changes.
type Reloader struct {
	cfg      Config
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce *Debouncer

	restartCh chan string
	running   atomic.Bool

	cmd    *exec.Cmd
	exited chan struct{}

	starts atomic.Int64
}

// New validates cfg and creates the fsnotify watcher.
func New(cfg Config) (*Reloader, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("devreload: command is required")
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"."}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Reloader{
		cfg:       cfg,
		logger:    logger.With("component", "devreload"),
		watcher:   watcher,
		debounce:  NewDebouncer(cfg.Debounce),
		restartCh: make(chan string, 1),
	}, nil
}

// Starts reports how many times the command has been started.
func (r *Reloader) Starts() int64 {
	return r.starts.Load()
}

// Run starts the command and restarts it after each batch of changes. It
// blocks until ctx is canceled, then stops the child and returns nil.
func (r *Reloader) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("devreload: already running")
	}
	defer r.watcher.Close()
	defer r.debounce.Stop()

	for _, p := range r.cfg.Paths {
		if err := r.addPath(p); err != nil {
			return fmt.Errorf("failed to watch %q: %w", p, err)
		}
	}
	r.logger.Info("watching for changes",
		"paths", r.cfg.Paths,
		"extensions", r.cfg.Extensions,
		"debounce_ms", r.cfg.Debounce.Milliseconds(),
	)

	if err := r.start(ctx); err != nil {
		r.logger.Error("failed to start command", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			r.stop()
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				r.stop()
				return errors.New("watcher events channel closed")
			}
			r.handleEvent(event)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				r.stop()
				return errors.New("watcher errors channel closed")
			}
			r.logger.Error("file watcher error", "error", err)

		case path := <-r.restartCh:
			r.logger.Info("change detected, restarting", "path", path)
			r.stop()
			if err := r.start(ctx); err != nil {
				r.logger.Error("failed to start command", "error", err)
			}

		case <-r.childExited():
			r.logger.Warn("command exited, waiting for changes",
				"exit_code", r.cmd.ProcessState.ExitCode(),
			)
			r.cmd, r.exited = nil, nil
		}
	}
}

// childExited returns a channel that is closed when the current child
// exits, or nil (blocks forever in select) when none is running.
func (r *Reloader) childExited() <-chan struct{} {
	return r.exited
}

func (r *Reloader) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(event.Name) {
			if err := r.addDirectory(event.Name); err != nil {
				r.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
	}
	if !r.shouldProcessEvent(event) {
		return
	}

	r.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	name := event.Name
	r.debounce.Trigger(func() {
		select {
		case r.restartCh <- name:
		default:
		}
	})
}

func (r *Reloader) start(ctx context.Context) error {
	if r.cfg.Port > 0 && r.cfg.Freer != nil {
		freed, err := r.cfg.Freer.FreePort(ctx, r.cfg.Port)
		if err != nil {
			r.logger.Warn("failed to free port", "port", r.cfg.Port, "error", err)
		} else if freed {
			r.logger.Info("freed port held by another process", "port", r.cfg.Port)
		}
	}

	cmd := exec.Command(r.cfg.Command[0], r.cfg.Command[1:]...)
	cmd.Dir = r.cfg.Dir
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	cmd.Stdout = r.cfg.Stdout
	cmd.Stderr = r.cfg.Stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %q: %w", r.cfg.Command[0], err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	r.cmd, r.exited = cmd, exited
	n := r.starts.Add(1)
	r.logger.Info("command started", "pid", cmd.Process.Pid, "start", n)
	return nil
}

// stop terminates the running child, if any, and waits for it to exit.
func (r *Reloader) stop() {
	if r.cmd == nil {
		return
	}
	cmd, exited := r.cmd, r.exited
	r.cmd, r.exited = nil, nil

	select {
	case <-exited:
		return
	default:
	}

	if err := terminate(cmd); err != nil {
		r.logger.Debug("failed to signal command", "pid", cmd.Process.Pid, "error", err)
	}

	timer := time.NewTimer(r.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		r.logger.Warn("command did not exit, killing", "pid", cmd.Process.Pid)
		_ = kill(cmd)
		<-exited
	}
}

func (r *Reloader) addPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return r.addDirectory(path)
	}
	return r.watcher.Add(path)
}

// addDirectory watches dir and every non-hidden directory below it.
func (r *Reloader) addDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(path) {
			return filepath.SkipDir
		}
		if err := r.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %q: %w", path, err)
		}
		return nil
	})
}

// shouldProcessEvent reports whether event should cause a restart.
func (r *Reloader) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if isHidden(event.Name) {
		return false
	}
	return r.hasValidExtension(filepath.Ext(event.Name))
}

func (r *Reloader) hasValidExtension(ext string) bool {
	if len(r.cfg.Extensions) == 0 {
		return true
	}
	for _, valid := range r.cfg.Extensions {
		if strings.EqualFold(ext, valid) {
			return true
		}
	}
	return false
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
