// Package runnertest provides a recording runner.Runner for tests.
package runnertest

import (
	"context"
	"sync"

	"github.com/shinji-kodama/venv-bootstrap/internal/runner"
)

// Recorder records every command it is asked to run and returns scripted
// results instead of starting processes.
type Recorder struct {
	mu       sync.Mutex
	commands []runner.Command

	// Handler, when set, decides the outcome of each call. It may also
	// perform filesystem side effects to stand in for the real tool.
	Handler func(ctx context.Context, cmd runner.Command) error
}

// Run records cmd and delegates to Handler.
func (r *Recorder) Run(ctx context.Context, cmd runner.Command) error {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	if r.Handler != nil {
		return r.Handler(ctx, cmd)
	}
	return nil
}

// Commands returns a copy of the recorded commands in call order.
func (r *Recorder) Commands() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]runner.Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Lines returns the recorded commands rendered with Command.String.
func (r *Recorder) Lines() []string {
	cmds := r.Commands()
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}
