package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/fetch"
	"mercator-hq/relay/pkg/ports"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

const shutdownTimeout = 10 * time.Second

var runFlags struct {
	listenAddress string
	workers       int
	debug         bool
	logLevel      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay server",
	Long: `Start the relay server with the specified configuration.

The server listens on the configured address and serves the demo
application. When metrics are enabled a second listener serves
Prometheus metrics together with /health, /ready and /version.

Examples:
  # Start with default config
  relay run

  # Start with custom config
  relay run --config /etc/relay/relay.yaml

  # Override listen address and worker count
  relay run --listen 0.0.0.0:8080 --workers 8`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().IntVarP(&runFlags.workers, "workers", "w", 0, "override worker count")
	runCmd.Flags().BoolVar(&runFlags.debug, "debug", false, "include internal error detail in responses")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// applyRunFlags copies command line overrides onto cfg and validates the
// result again.
func applyRunFlags(cfg *config.Config) error {
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.workers != 0 {
		cfg.Server.MaxWorkers = runFlags.workers
	}
	if runFlags.debug {
		cfg.Server.Debug = true
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	return config.Validate(cfg)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	a, err := newApp(cfg)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	srvCfg, err := serverConfig(cfg, a, logger)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	srvCfg.Fetcher = fetch.New(fetch.Options{
		Timeout:  cfg.Fetch.Timeout,
		Observer: collector,
		Logger:   logger,
	})
	srvCfg.Observer = collector
	srvCfg.TransferObserver = collector
	srvCfg.Tracer = tracer.Tracer()

	srv, err := server.New(srvCfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	collector.RegisterPool(srv.Stats)

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	var admin *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		admin, err = startAdmin(cfg, srv, collector, logger)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin listener shutdown failed", "error", err)
			}
		}()
	}

	go func() {
		select {
		case <-srv.Ready():
			logger.Info("relay listening",
				"address", srv.Addr().String(),
				"workers", cfg.Server.MaxWorkers,
				"debug", cfg.Server.Debug,
				"version", Version,
			)
		case <-srv.Done():
		}
	}()

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	logger.Info("relay stopped", "served", srv.Stats().Served)
	return nil
}

// serverConfig maps the loaded configuration onto server.Config. Fetcher,
// observers and tracer are left for the caller.
func serverConfig(cfg *config.Config, a *app, logger *slog.Logger) (server.Config, error) {
	host, port, err := cfg.Server.HostPort()
	if err != nil {
		return server.Config{}, fmt.Errorf("invalid listen address %q: %w", cfg.Server.ListenAddress, err)
	}

	// server.Config treats zero as "use the default"; the file means none.
	retries := cfg.Server.BindRetries
	if retries == 0 {
		retries = -1
	}

	sc := server.Config{
		Host:                host,
		Port:                port,
		MaxWorkers:          cfg.Server.MaxWorkers,
		QueueDepth:          cfg.Server.QueueDepth,
		Handler:             a.Handle,
		ErrorHandler:        a.handleError,
		Debug:               cfg.Server.Debug,
		MaxRequestLineBytes: cfg.Server.MaxRequestLineBytes,
		MaxHeaderBytes:      cfg.Server.MaxHeaderBytes,
		ReadHeaderTimeout:   cfg.Server.ReadHeaderTimeout,
		BindRetries:         retries,
		BindRetryDelay:      cfg.Server.BindRetryDelay,
		Logger:              logger,
	}
	if cfg.Server.FreePortOnConflict {
		sc.PortFreer = ports.New(logger)
	}
	return sc, nil
}

// adminMux serves metrics at the configured path plus the health
// endpoints.
func adminMux(cfg *config.Config, srv *server.Server, collector *metrics.Collector) *http.ServeMux {
	checker := health.New(health.DefaultCheckTimeout)
	checker.RegisterCheck("listener", health.ListenerCheck(srv))
	checker.RegisterCheck("queue", health.QueueCheck(srv.Stats, int64(cfg.Server.QueueDepth)))

	mux := http.NewServeMux()
	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
	health.Register(mux, checker, Version, GitCommit, BuildDate)
	return mux
}

func startAdmin(cfg *config.Config, srv *server.Server, collector *metrics.Collector, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", cfg.Telemetry.Metrics.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to bind admin listener %s: %w", cfg.Telemetry.Metrics.ListenAddress, err)
	}

	admin := &http.Server{
		Handler:           adminMux(cfg, srv, collector),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin listener failed", "error", err)
		}
	}()

	logger.Info("admin listener started",
		"address", ln.Addr().String(),
		"metrics_path", cfg.Telemetry.Metrics.Path,
	)
	return admin, nil
}
