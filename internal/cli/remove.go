// Package cli: remove.go implements the "venv-bootstrap remove" command.
//
// The remove command deletes the environment directory, provisioning record
// included. It refuses a directory that does not look like a virtual
// environment (no pyvenv.cfg) unless --force is given. Nothing outside the
// environment directory is touched.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/venv-bootstrap/internal/model"
	"github.com/shinji-kodama/venv-bootstrap/internal/venv"
)

// removeFlags holds the flag values for the remove command.
type removeFlags struct {
	// force removes the directory even without the pyvenv.cfg marker.
	force bool
}

// NewRemoveCommand creates the "remove" cobra command.
func NewRemoveCommand() *cobra.Command {
	flags := &removeFlags{}

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the virtual environment",
		Long: `Remove the virtual environment directory.

The directory must contain pyvenv.cfg, the marker every virtual environment
carries. Use --force to remove a directory without it, for example one left
behind by an interrupted creation. A missing directory is not an error.

Examples:
  venv-bootstrap remove
  venv-bootstrap remove --env-dir .venv --force`,

		Args: noArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove even if the directory is not a virtual environment")

	return cmd
}

// runRemove resolves the environment path and deletes it.
func runRemove(cmd *cobra.Command, flags *removeFlags) error {
	settings, log, err := loadSettings(cmd)
	defer log.Sync()
	if err != nil {
		return err
	}

	layout, err := venv.NewLayout(settings.EnvDir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to resolve environment path", err)
	}

	_, statErr := os.Lstat(layout.Root)
	existed := statErr == nil

	manager := venv.NewManager(nil, log)
	if err := manager.Remove(layout.Root, flags.force); err != nil {
		if errors.Is(err, venv.ErrNotEnvironment) || errors.Is(err, venv.ErrNotDirectory) {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("refusing to remove %s", layout.Root), err)
		}
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to remove %s", layout.Root), err)
	}

	printRemoveResult(cmd.OutOrStdout(), layout.Root, existed)
	return nil
}

// printRemoveResult outputs the remove command result in text or JSON format.
func printRemoveResult(w io.Writer, path string, existed bool) {
	if IsJSONOutput() {
		action := "removed"
		if !existed {
			action = "absent"
		}
		data, _ := json.MarshalIndent(map[string]interface{}{
			"path":   path,
			"action": action,
		}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if existed {
		fmt.Fprintf(w, "Removed virtual environment at %s\n", path)
	} else {
		fmt.Fprintf(w, "No virtual environment at %s\n", path)
	}
}
