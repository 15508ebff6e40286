// Package cli implements the cobra-based CLI for venv-bootstrap.
//
// The root command performs the bootstrap itself. The status and remove
// subcommands inspect and delete the environment it produces; each lives in
// its own file within this package.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/venv-bootstrap/internal/config"
	"github.com/shinji-kodama/venv-bootstrap/internal/logging"
	"github.com/shinji-kodama/venv-bootstrap/internal/model"
	"github.com/shinji-kodama/venv-bootstrap/internal/runner"
)

// Global flag variables shared across all subcommands.
// They are bound to persistent flags on the root command, and binding
// resets them, so every NewRootCommand call starts from the defaults.
var (
	// jsonOutput switches error and status output to JSON.
	// Progress lines and the guidance message are always plain text.
	jsonOutput bool

	// verbose enables debug logging on stderr.
	verbose bool

	// configFile is the --config value. Empty means DefaultConfigFile
	// when present.
	configFile string
)

// Version, Commit and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// newRunner builds the runner that starts the external tools. Tests swap
// it for a recorder.
var newRunner = func(stdout, stderr io.Writer, log *logging.Logger) runner.Runner {
	return runner.NewExecRunner(stdout, stderr, log)
}

// NewRootCommand creates and configures the root cobra command.
//
// Running it without a subcommand provisions the environment:
// create, activate, upgrade pip, install the manifest, then print how to
// start the server.
func NewRootCommand() *cobra.Command {
	flags := &bootstrapFlags{}

	rootCmd := &cobra.Command{
		Use:   "venv-bootstrap",
		Short: "Provision a Python virtual environment for an ASGI service",
		Long: `venv-bootstrap prepares an isolated Python environment for a web service.

It runs four steps in a fixed order and stops at the first failure:
  1. create the virtual environment
  2. activate it for the remaining steps
  3. upgrade pip inside it
  4. install the dependencies listed in the manifest

On success it prints the command that starts the server.

Settings come from defaults, then the config file (` + config.DefaultConfigFile + `
or --config), then ` + config.EnvPrefix + `_* environment variables, then flags.

Examples:
  venv-bootstrap
  venv-bootstrap --env-dir .venv --manifest requirements-dev.txt
  venv-bootstrap --dry-run
  venv-bootstrap status --json`,

		Args: noArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors lets Execute format errors (text or JSON).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd, flags)
		},
	}

	// Persistent flags are shared with status and remove, which need to
	// find the same environment directory.
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "Output errors and status in JSON format")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	pf.StringVar(&configFile, "config", "", "Config file (default: "+config.DefaultConfigFile+" if present)")
	config.RegisterFlags(pf)

	rootCmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the steps that would run without running them")

	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewRemoveCommand())

	return rootCmd
}

// Execute runs the root command and exits the process with the resulting
// code. SIGINT and SIGTERM cancel the run and kill the active tool.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := ExecuteContext(ctx, rootCmd, os.Stderr)
	stop()
	os.Exit(int(code))
}

// ExecuteContext runs rootCmd with ctx, reports any error on stderr and
// returns the exit code instead of exiting.
func ExecuteContext(ctx context.Context, rootCmd *cobra.Command, stderr io.Writer) model.ExitCode {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return model.ExitSuccess
	}

	message, detail := describeError(err)
	printError(stderr, message, detail)
	return model.ExitCodeFor(err)
}

// describeError splits err into the headline and the underlying cause.
//
// Step failures lead with the step title so the operator sees which stage
// broke before the tool output that explains it.
func describeError(err error) (string, error) {
	var stepErr *model.StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step.Title() + " failed", stepErr.Err
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Message, cliErr.Err
	}
	return err.Error(), nil
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode; stdout carries results.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// noArgs rejects positional arguments as a configuration error.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return model.WrapCLIError(model.ExitConfigError, "invalid arguments", err)
	}
	return nil
}

// loadSettings resolves the layered configuration for cmd and returns a
// logger writing to the command's stderr.
func loadSettings(cmd *cobra.Command) (config.Settings, *logging.Logger, error) {
	log := logging.NewWithWriter(cmd.ErrOrStderr(), verbose)

	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Settings{}, log, model.WrapCLIError(model.ExitConfigError, "invalid flags", err)
	}
	s, err := config.Load(v, configFile)
	if err != nil {
		return config.Settings{}, log, err
	}

	log.Debug("settings resolved",
		"env_dir", s.EnvDir, "manifest", s.Manifest, "python", s.Python,
		"app", s.App, "host", s.Host, "port", s.Port)
	return s, log, nil
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
