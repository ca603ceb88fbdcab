/*
Package cli provides helpers shared by the relay commands.

Output Formatting:

Commands that print structured results accept --format text, json or yaml:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Errors and Exit Codes:

Commands wrap configuration problems in ConfigError and runtime failures
in CommandError. ExitCode maps them to the process exit status: 2 for
configuration errors, 1 for anything else.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
