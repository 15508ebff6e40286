// Package model defines the domain types and value objects for the
// venv-bootstrap CLI.
//
// This package contains pure data structures with no external dependencies:
// the Step enumeration and its canonical order, per-step outcomes
// (StepStatus, StepResult), exit codes (ExitCode) and the error types
// (CLIError, StepError) the CLI layer translates into process exit codes.
package model
