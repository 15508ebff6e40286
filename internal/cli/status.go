// Package cli: status.go implements the "venv-bootstrap status" command.
//
// The status command reads the provisioning record that the last run left
// inside the environment directory and reports the outcome of each step,
// as a text table or JSON depending on the --json flag.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/venv-bootstrap/internal/model"
	"github.com/shinji-kodama/venv-bootstrap/internal/state"
	"github.com/shinji-kodama/venv-bootstrap/internal/venv"
)

// NewStatusCommand creates the "status" cobra command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last bootstrap run",
		Long: `Show the outcome of the last bootstrap run for the environment.

The record is read from the environment directory, so --env-dir (or the
config file) must point at the same directory the run used.

Examples:
  venv-bootstrap status
  venv-bootstrap status --env-dir .venv --json`,

		Args: noArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
}

// environmentStatus is the JSON output structure of the status command.
type environmentStatus struct {
	EnvDir        string       `json:"envDir"`
	PythonVersion string       `json:"pythonVersion,omitempty"`
	RunID         string       `json:"runId"`
	StartedAt     time.Time    `json:"startedAt"`
	FinishedAt    time.Time    `json:"finishedAt"`
	Interpreter   string       `json:"interpreter"`
	Manifest      manifestJSON `json:"manifest"`
	Succeeded     bool         `json:"succeeded"`
	Steps         []stepJSON   `json:"steps"`
}

type manifestJSON struct {
	Path         string `json:"path"`
	SHA256       string `json:"sha256,omitempty"`
	Requirements int    `json:"requirements"`
}

type stepJSON struct {
	Step     string `json:"step"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// runStatus loads the record for the configured environment and prints it.
func runStatus(cmd *cobra.Command) error {
	settings, log, err := loadSettings(cmd)
	defer log.Sync()
	if err != nil {
		return err
	}

	layout, err := venv.NewLayout(settings.EnvDir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to resolve environment path", err)
	}

	rec, err := state.Load(layout.Root)
	if errors.Is(err, state.ErrNoRecord) {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("no bootstrap record in %s; run venv-bootstrap first", layout.Root))
	}
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to read bootstrap record", err)
	}

	status := buildStatus(layout.Root, rec)

	// pyvenv.cfg is informational; a missing or unreadable file only
	// hides the version.
	if cfg, err := venv.ReadConfig(layout.Root); err == nil {
		status.PythonVersion = cfg["version"]
	} else {
		log.Debug("pyvenv.cfg unavailable", "error", err)
	}

	if IsJSONOutput() {
		return printStatusJSON(cmd.OutOrStdout(), status)
	}
	printStatusText(cmd.OutOrStdout(), status)
	return nil
}

func buildStatus(root string, rec *state.Record) environmentStatus {
	status := environmentStatus{
		EnvDir:      root,
		RunID:       rec.RunID,
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
		Interpreter: rec.Interpreter,
		Manifest: manifestJSON{
			Path:         rec.Manifest.Path,
			SHA256:       rec.Manifest.SHA256,
			Requirements: rec.Manifest.Requirements,
		},
		Succeeded: rec.Succeeded,
		// Empty slice so JSON shows [] rather than null.
		Steps: make([]stepJSON, 0, len(rec.Steps)),
	}
	for _, s := range rec.Steps {
		status.Steps = append(status.Steps, stepJSON{
			Step:     s.Step.String(),
			Status:   s.Status.String(),
			Duration: s.Duration,
			Error:    s.Error,
		})
	}
	return status
}

func printStatusJSON(w io.Writer, status environmentStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to encode status", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printStatusText outputs the status as a header block followed by an
// aligned step table:
//
//	Environment: /srv/app/venv
//	Python:      3.12.3
//	Run:         1f0c... (succeeded)
//	Manifest:    requirements.txt (12 requirements)
//
//	STEP                 STATUS     DURATION
//	create-env           succeeded  2.1s
func printStatusText(w io.Writer, status environmentStatus) {
	result := "failed"
	if status.Succeeded {
		result = "succeeded"
	}

	fmt.Fprintf(w, "Environment: %s\n", status.EnvDir)
	fmt.Fprintf(w, "Python:      %s\n", orDash(status.PythonVersion))
	fmt.Fprintf(w, "Run:         %s (%s)\n", status.RunID, result)
	fmt.Fprintf(w, "Started:     %s\n", status.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Manifest:    %s\n", FormatManifest(status.Manifest.Path, status.Manifest.Requirements))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-20s %-10s %s\n", "STEP", "STATUS", "DURATION")
	for _, s := range status.Steps {
		fmt.Fprintf(w, "%-20s %-10s %s\n", s.Step, s.Status, orDash(s.Duration))
		if s.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", s.Error)
		}
	}
}

// FormatManifest renders the manifest summary line. An empty path renders
// as a dash.
//
// Example:
//
//	("requirements.txt", 1) → "requirements.txt (1 requirement)"
//	("", 0)                 → "-"
func FormatManifest(path string, requirements int) string {
	if path == "" {
		return "-"
	}
	noun := "requirements"
	if requirements == 1 {
		noun = "requirement"
	}
	return fmt.Sprintf("%s (%d %s)", path, requirements, noun)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
