// Package runner executes the external tools the bootstrapper drives.
//
// Every invocation goes through the Runner interface so the bootstrap
// sequence can be exercised against a recording fake in tests. The real
// implementation, ExecRunner, streams the child's output straight through
// to the operator and keeps the tail of stderr for the error message.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/shinji-kodama/venv-bootstrap/internal/logging"
	"github.com/shinji-kodama/venv-bootstrap/internal/model"
)

// stderrTailLimit bounds how much of a failing tool's stderr is copied into
// the returned error. The full output has already been streamed.
const stderrTailLimit = 2048

// Command describes one external tool invocation.
type Command struct {
	// Name is the executable. A bare name is resolved against the overlay
	// PATH first and then the process PATH.
	Name string

	// Args are the arguments passed after Name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is applied on top of the process environment. Nil means the
	// child inherits the environment unchanged.
	Env *Overlay
}

// String renders the command the way an operator would type it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// quote wraps arguments containing whitespace in single quotes.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n'\"") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// CommandError is returned when a tool could not be started or exited
// non-zero. The original *exec.ExitError stays reachable through Unwrap so
// the CLI can propagate the tool's exit status.
type CommandError struct {
	// Command is the rendered command line.
	Command string

	// Stderr is the trimmed tail of what the tool wrote to stderr.
	Stderr string

	Err error
}

// Error satisfies the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Command)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands as child processes via os/exec.
type ExecRunner struct {
	// Stdout receives the child's standard output. Defaults to os.Stdout.
	Stdout io.Writer

	// Stderr receives the child's standard error. Defaults to os.Stderr.
	Stderr io.Writer

	// Log receives debug entries for each invocation. Defaults to a no-op logger.
	Log *logging.Logger
}

// NewExecRunner returns an ExecRunner wired to the given writers.
func NewExecRunner(stdout, stderr io.Writer, log *logging.Logger) *ExecRunner {
	return &ExecRunner{Stdout: stdout, Stderr: stderr, Log: log}
}

// Run starts the command and blocks until it exits or ctx is cancelled.
// Cancelling ctx kills the child; no cleanup is attempted.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	log := r.Log
	if log == nil {
		log = logging.NewNop()
	}
	stdout := r.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := r.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	path, err := LookPath(c.Name, c.Env)
	if err != nil {
		return &CommandError{
			Command: c.String(),
			Err:     model.WrapCLIError(model.ExitCommandNotFound, fmt.Sprintf("executable %q not found", c.Name), err),
		}
	}

	// #nosec G204 -- the command line is assembled from settings, not a shell string
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env.Apply(os.Environ())
	}

	// Tee stderr so the operator sees it live and the error can quote it.
	tail := &tailBuffer{limit: stderrTailLimit}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)

	log.Debug("running command", "cmd", c.String(), "path", path, "dir", c.Dir)

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return &CommandError{
			Command: c.String(),
			Stderr:  strings.TrimSpace(tail.String()),
			Err:     err,
		}
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
