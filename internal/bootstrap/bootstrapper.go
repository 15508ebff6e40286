// Package bootstrap runs the provisioning sequence.
//
// The sequence is strictly linear:
//  1. create the isolated environment
//  2. activate it (scoped overlay for the rest of the run)
//  3. upgrade the package installer inside it
//  4. install every dependency declared in the manifest
//
// and, only when all four succeed, prints the guidance message as the last
// output of the run. The first failing step aborts the run: later steps are
// marked skipped, nothing is retried and nothing is rolled back.
package bootstrap

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/shinji-kodama/venv-bootstrap/internal/config"
	"github.com/shinji-kodama/venv-bootstrap/internal/logging"
	"github.com/shinji-kodama/venv-bootstrap/internal/manifest"
	"github.com/shinji-kodama/venv-bootstrap/internal/model"
	"github.com/shinji-kodama/venv-bootstrap/internal/pip"
	"github.com/shinji-kodama/venv-bootstrap/internal/port"
	"github.com/shinji-kodama/venv-bootstrap/internal/runner"
	"github.com/shinji-kodama/venv-bootstrap/internal/state"
	"github.com/shinji-kodama/venv-bootstrap/internal/venv"
)

// Options configures a Bootstrapper.
type Options struct {
	// Settings is the resolved configuration. It must pass Validate.
	Settings config.Settings

	// Runner executes the external tools.
	Runner runner.Runner

	// Stdout receives progress lines and the guidance message.
	// Defaults to os.Stdout.
	Stdout io.Writer

	// Log receives diagnostics. Defaults to a no-op logger.
	Log *logging.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// SkipRecord disables writing the provisioning record into the
	// environment directory.
	SkipRecord bool

	// Ports probes the launch port before the guidance is printed.
	// Defaults to a scanner on Settings.Host.
	Ports *port.Scanner
}

// Report describes a finished run, successful or not.
type Report struct {
	// RunID identifies the run; it matches the provisioning record.
	RunID string

	// Results has one entry per step in execution order.
	Results []model.StepResult

	// Layout is set once the environment has been created.
	Layout venv.Layout

	// Activation is set once the environment has been activated.
	Activation *venv.Activation

	// Manifest is set once the manifest has been loaded.
	Manifest *manifest.Manifest

	// Installed reports whether the installer was invoked for the manifest.
	// It is false for an empty manifest.
	Installed bool

	// Guidance is the message printed on success, empty otherwise.
	Guidance string
}

// Succeeded reports whether every step succeeded.
func (r *Report) Succeeded() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if res.Status != model.StatusSucceeded {
			return false
		}
	}
	return true
}

// FailedStep returns the step that aborted the run, if any.
func (r *Report) FailedStep() (model.Step, bool) {
	for _, res := range r.Results {
		if res.Status == model.StatusFailed {
			return res.Step, true
		}
	}
	return "", false
}

// Bootstrapper executes the provisioning sequence.
type Bootstrapper struct {
	settings   config.Settings
	venvs      *venv.Manager
	installer  *pip.Installer
	progress   *Progress
	ports      *port.Scanner
	log        *logging.Logger
	now        func() time.Time
	skipRecord bool
}

// New returns a Bootstrapper for opts.
func New(opts Options) *Bootstrapper {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ports := opts.Ports
	if ports == nil {
		ports = port.NewScanner(opts.Settings.Host)
	}

	return &Bootstrapper{
		settings:   opts.Settings,
		venvs:      venv.NewManager(opts.Runner, log),
		installer:  pip.NewInstaller(opts.Runner, log),
		progress:   NewProgress(stdout),
		ports:      ports,
		log:        log,
		now:        now,
		skipRecord: opts.SkipRecord,
	}
}

// stepFunc performs one provisioning step, filling in the report.
type stepFunc func(ctx context.Context, report *Report) error

// Run executes the sequence and returns the report together with the
// first error. The error is a *model.StepError naming the failed step;
// model.ExitCodeFor maps it to the process exit code.
func (b *Bootstrapper) Run(ctx context.Context) (*Report, error) {
	started := b.now()
	record := state.NewRecord(b.settings.Python, "", started)
	log := b.log.With("run", record.RunID)

	report := &Report{RunID: record.RunID}

	funcs := map[model.Step]stepFunc{
		model.StepCreateEnv:        b.createEnv,
		model.StepActivateEnv:      b.activateEnv,
		model.StepUpgradeInstaller: b.upgradeInstaller,
		model.StepInstallDeps:      b.installDeps,
	}

	steps := model.Steps()
	report.Results = make([]model.StepResult, len(steps))
	for i, step := range steps {
		report.Results[i] = model.StepResult{Step: step, Status: model.StatusPending}
	}

	var runErr error
	for i, step := range steps {
		b.progress.Step(i+1, len(steps), step)
		log.Debug("step started", "step", step)

		stepStart := b.now()
		err := ctx.Err()
		if err == nil {
			err = funcs[step](ctx, report)
		}
		report.Results[i].Duration = b.now().Sub(stepStart)

		if err != nil {
			report.Results[i].Status = model.StatusFailed
			report.Results[i].Err = err
			for j := i + 1; j < len(steps); j++ {
				report.Results[j].Status = model.StatusSkipped
			}
			// The caller reports err.
			log.Debug("step failed", "step", step, "error", err)
			runErr = &model.StepError{Step: step, Err: err}
			break
		}

		report.Results[i].Status = model.StatusSucceeded
		log.Debug("step finished", "step", step, "duration", report.Results[i].Duration)
	}

	b.saveRecord(record, report, log)

	if runErr != nil {
		return report, runErr
	}

	b.checkPort(log)

	// Guidance is the final output of a successful run.
	report.Guidance = Guidance(b.settings)
	b.progress.Guidance(report.Guidance)
	return report, nil
}

func (b *Bootstrapper) createEnv(ctx context.Context, report *Report) error {
	layout, err := b.venvs.Create(ctx, b.settings.Python, b.settings.EnvDir)
	if err != nil {
		return err
	}
	report.Layout = layout
	return nil
}

func (b *Bootstrapper) activateEnv(_ context.Context, report *Report) error {
	act, err := b.venvs.Activate(b.settings.EnvDir)
	if err != nil {
		return err
	}
	report.Activation = act
	return nil
}

func (b *Bootstrapper) upgradeInstaller(ctx context.Context, report *Report) error {
	return b.installer.Upgrade(ctx, report.Activation)
}

func (b *Bootstrapper) installDeps(ctx context.Context, report *Report) error {
	m, err := manifest.Load(b.settings.Manifest)
	if err != nil {
		return err
	}
	report.Manifest = m

	installed, err := b.installer.Install(ctx, report.Activation, m)
	if err != nil {
		return err
	}
	report.Installed = installed
	return nil
}

// checkPort warns on stderr when the launch port cannot be bound right now,
// suggesting the next free port. It never fails the run.
func (b *Bootstrapper) checkPort(log *logging.Logger) {
	p := b.settings.Port
	err := b.ports.Check(p)
	if err == nil {
		return
	}

	kv := []interface{}{"host", b.settings.Host, "port", p, "error", err}
	if free, findErr := b.ports.FindAvailable(p+1, p+100); findErr == nil {
		kv = append(kv, "suggested_port", free)
	}
	log.Warn("launch port is not available; uvicorn will fail to bind until it is freed", kv...)
}

// saveRecord writes the provisioning record into the environment
// directory. It is skipped when the directory does not exist (for example
// when creation failed because the path is a regular file), so a run never
// writes anywhere else. Failing to write the record does not change the
// outcome of the run.
func (b *Bootstrapper) saveRecord(record *state.Record, report *Report, log *logging.Logger) {
	if b.skipRecord {
		return
	}

	layout, err := venv.NewLayout(b.settings.EnvDir)
	if err != nil {
		return
	}
	info, err := os.Stat(layout.Root)
	if err != nil || !info.IsDir() {
		log.Debug("no environment directory, record not written", "path", layout.Root)
		return
	}

	record.EnvDir = layout.Root
	record.FinishedAt = b.now().UTC()
	record.Manifest = state.ManifestInfo{Path: b.settings.Manifest}
	if report.Manifest != nil {
		record.Manifest.SHA256 = report.Manifest.SHA256
		record.Manifest.Requirements = len(report.Manifest.Requirements)
	}
	record.SetResults(report.Results)

	if err := state.Save(layout.Root, record); err != nil {
		log.Warn("could not write bootstrap record", "error", err)
	}
}
