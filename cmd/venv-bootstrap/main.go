// Package main is the entry point for the venv-bootstrap CLI.
//
// The binary provisions a Python virtual environment for an ASGI service
// and prints the command that starts it. All functionality lives in the
// internal/cli package.
//
// Build-time variables (version, commit, date) are injected via ldflags
// during release builds. During development they default to "dev",
// "none" and "unknown".
package main

import (
	"github.com/shinji-kodama/venv-bootstrap/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Execute handles error formatting, signals and exit codes.
	cli.Execute(cli.NewRootCommand())
}
