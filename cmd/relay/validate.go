package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
)

var validateFlags struct {
	print  bool
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file, apply RELAY_* environment overrides and
validate the result. Every invalid field is reported, not only the first.

Examples:
  # Validate a configuration file
  relay validate --config relay.yaml

  # Show the effective configuration as YAML
  relay validate --config relay.yaml --print --format yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.print, "print", false, "print the effective configuration")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "yaml", "output format for --print: text, json, yaml")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if validateFlags.print {
		return cli.NewFormatter(format).FormatTo(out, cfg)
	}

	source := cfgFile
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(out, "✓ Configuration valid (%s)\n", source)
	return nil
}
