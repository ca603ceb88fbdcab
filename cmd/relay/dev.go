package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/devreload"
	"mercator-hq/relay/pkg/ports"
	"mercator-hq/relay/pkg/telemetry/logging"
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run the server and restart it when files change",
	Long: `Run the configured server command and restart it whenever a watched
file changes. Bursts of changes are collapsed into one restart, and the
listening port is freed before each start so the new process can bind.

The command, watched paths, extensions and debounce interval come from the
dev section of the configuration.

Examples:
  # Watch the current directory and run "go run ./cmd/relay run"
  relay dev

  # Use a configuration file; it is passed on to the child
  relay dev --config relay.yaml`,
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)
}

func runDev(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: string(logging.FormatConsole),
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	rcfg, err := reloaderConfig(cfg, cfgFile, logger)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	r, err := devreload.New(rcfg)
	if err != nil {
		return cli.NewCommandError("dev", err)
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	if err := r.Run(ctx); err != nil {
		return cli.NewCommandError("dev", err)
	}
	logger.Info("dev reloader stopped", "starts", r.Starts())
	return nil
}

// reloaderConfig maps the dev section onto devreload.Config. A config file
// given to relay is handed on to the child command.
func reloaderConfig(cfg *config.Config, path string, logger *slog.Logger) (devreload.Config, error) {
	_, port, err := cfg.Server.HostPort()
	if err != nil {
		return devreload.Config{}, fmt.Errorf("invalid listen address %q: %w", cfg.Server.ListenAddress, err)
	}

	command := append([]string(nil), cfg.Dev.Command...)
	if path != "" {
		command = append(command, "--config", path)
	}

	return devreload.Config{
		Paths:      cfg.Dev.Watch,
		Extensions: cfg.Dev.Extensions,
		Debounce:   cfg.Dev.Debounce,
		Command:    command,
		// The child frees the port itself if a bind still collides.
		Env:    []string{config.EnvPrefix + "SERVER_FREE_PORT_ON_CONFLICT=true"},
		Port:   port,
		Freer:  ports.New(logger),
		Logger: logger,
	}, nil
}
