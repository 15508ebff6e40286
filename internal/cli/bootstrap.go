package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/venv-bootstrap/internal/bootstrap"
)

// bootstrapFlags holds the flag values local to the root command.
type bootstrapFlags struct {
	// dryRun prints the plan instead of running it.
	dryRun bool
}

// runBootstrap resolves the settings and runs the provisioning sequence.
// Tool output is streamed to the command's stdout and stderr as it arrives.
func runBootstrap(cmd *cobra.Command, flags *bootstrapFlags) error {
	settings, log, err := loadSettings(cmd)
	defer log.Sync()
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()

	if flags.dryRun {
		plan, err := bootstrap.Plan(settings)
		if err != nil {
			return err
		}
		bootstrap.WritePlan(stdout, settings, plan)
		return nil
	}

	b := bootstrap.New(bootstrap.Options{
		Settings: settings,
		Runner:   newRunner(stdout, cmd.ErrOrStderr(), log),
		Stdout:   stdout,
		Log:      log,
	})

	report, err := b.Run(cmd.Context())
	if err != nil {
		return err
	}
	log.Debug("bootstrap finished", "run", report.RunID, "installed", report.Installed)
	return nil
}
