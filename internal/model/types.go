// Package model defines the domain types for the venv-bootstrap CLI.
//
// The bootstrapper keeps no persistent entities of its own. Everything in
// this package is a transient description of a single run: which steps
// exist, in what order they run, how each one ended, and which exit code
// the process should report.
package model

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Step identifies one provisioning step of a bootstrap run.
// The order in which steps execute is fixed and given by Steps().
type Step string

const (
	// StepCreateEnv builds the isolated interpreter environment on disk.
	StepCreateEnv Step = "create-env"

	// StepActivateEnv rebinds tool resolution to the isolated environment
	// for the remainder of the run. It never touches the parent process.
	StepActivateEnv Step = "activate-env"

	// StepUpgradeInstaller upgrades the package installer inside the
	// isolated environment before any dependency is installed.
	StepUpgradeInstaller Step = "upgrade-installer"

	// StepInstallDeps installs every entry of the dependency manifest.
	StepInstallDeps Step = "install-deps"
)

// steps is the canonical execution order. Each step is a precondition
// for the next one.
var steps = []Step{
	StepCreateEnv,
	StepActivateEnv,
	StepUpgradeInstaller,
	StepInstallDeps,
}

// Steps returns the provisioning steps in execution order.
// A fresh slice is returned so callers cannot reorder the canonical list.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// String returns the string representation of Step.
func (s Step) String() string {
	return string(s)
}

// IsValid checks whether the Step value is one of the predefined steps.
func (s Step) IsValid() bool {
	for _, known := range steps {
		if s == known {
			return true
		}
	}
	return false
}

// Index returns the zero-based position of the step in the execution
// order, or -1 for an unknown step.
func (s Step) Index() int {
	for i, known := range steps {
		if s == known {
			return i
		}
	}
	return -1
}

// Title is the human-readable progress label printed before a step runs.
func (s Step) Title() string {
	switch s {
	case StepCreateEnv:
		return "Creating virtual environment"
	case StepActivateEnv:
		return "Activating virtual environment"
	case StepUpgradeInstaller:
		return "Upgrading pip"
	case StepInstallDeps:
		return "Installing dependencies"
	default:
		return string(s)
	}
}

// ExitCode returns the category exit code used when the step fails for a
// reason other than an external tool exiting non-zero.
func (s Step) ExitCode() ExitCode {
	switch s {
	case StepCreateEnv:
		return ExitEnvCreateFailed
	case StepActivateEnv:
		return ExitActivationFailed
	case StepUpgradeInstaller:
		return ExitInstallerUpgradeFailed
	case StepInstallDeps:
		return ExitDependencyInstallFailed
	default:
		return ExitGeneralError
	}
}

// ParseStep converts a string to a Step.
// Returns an error if the string does not match any known step.
func ParseStep(s string) (Step, error) {
	step := Step(strings.ToLower(strings.TrimSpace(s)))
	if !step.IsValid() {
		return "", fmt.Errorf("invalid step: %q (valid: create-env, activate-env, upgrade-installer, install-deps)", s)
	}
	return step, nil
}

// StepStatus is the terminal outcome of a single step within one run.
type StepStatus string

const (
	// StatusPending means the run has not reached the step yet.
	StatusPending StepStatus = "pending"

	// StatusSucceeded means the step completed without error.
	StatusSucceeded StepStatus = "succeeded"

	// StatusFailed means the step returned an error and aborted the run.
	StatusFailed StepStatus = "failed"

	// StatusSkipped means an earlier step failed, so this one never ran.
	StatusSkipped StepStatus = "skipped"
)

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// IsValid checks whether the StepStatus value is one of the known states.
func (s StepStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// ParseStepStatus converts a string to a StepStatus.
func ParseStepStatus(s string) (StepStatus, error) {
	status := StepStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid step status: %q (valid: pending, succeeded, failed, skipped)", s)
	}
	return status, nil
}

// StepResult records how one step of a run ended.
type StepResult struct {
	// Step is the step this result belongs to.
	Step Step `json:"step"`

	// Status is the terminal state of the step.
	Status StepStatus `json:"status"`

	// Duration is the wall-clock time spent in the step.
	// Zero for pending and skipped steps.
	Duration time.Duration `json:"duration"`

	// Err is the failure cause. Only set when Status is StatusFailed.
	Err error `json:"-"`
}

// ExitCode defines the process exit codes reported by the CLI.
//
// When an external tool exits non-zero, its own status is propagated and
// these category codes are not used. They cover failures detected by the
// bootstrapper itself (missing interpreter, bad layout, missing manifest).
type ExitCode int

const (
	// ExitSuccess indicates the run completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates invalid flags, config file or environment
	// overrides.
	ExitConfigError ExitCode = 2

	// ExitEnvCreateFailed indicates the environment could not be created
	// (unwritable path, target path is a regular file).
	ExitEnvCreateFailed ExitCode = 3

	// ExitActivationFailed indicates a malformed environment layout.
	ExitActivationFailed ExitCode = 4

	// ExitInstallerUpgradeFailed indicates the installer upgrade failed
	// before the tool could report its own status.
	ExitInstallerUpgradeFailed ExitCode = 5

	// ExitDependencyInstallFailed indicates dependency installation failed
	// before the tool could report its own status.
	ExitDependencyInstallFailed ExitCode = 6

	// ExitManifestNotFound indicates the dependency manifest is absent.
	ExitManifestNotFound ExitCode = 7

	// ExitCommandNotFound indicates the interpreter could not be resolved.
	// 127 matches the code a POSIX shell reports for an unknown command.
	ExitCommandNotFound ExitCode = 127
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// StepError attributes a failure to the step that produced it.
type StepError struct {
	Step Step
	Err  error
}

// Error satisfies the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// ExitCodeFor picks the exit code the process should report for err.
//
// The priority order is:
//  1. nil → ExitSuccess
//  2. an external tool exited non-zero → that tool's exit status
//  3. a CLIError anywhere in the chain → its code
//  4. a StepError → the step's category code
//  5. anything else → ExitGeneralError
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return ExitCode(code)
		}
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.Code != ExitSuccess {
		return cliErr.Code
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step.ExitCode()
	}

	return ExitGeneralError
}
