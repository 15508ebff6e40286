package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/venv-bootstrap/internal/config"
	"github.com/shinji-kodama/venv-bootstrap/internal/logging"
	"github.com/shinji-kodama/venv-bootstrap/internal/model"
	"github.com/shinji-kodama/venv-bootstrap/internal/port"
	"github.com/shinji-kodama/venv-bootstrap/internal/runner"
	"github.com/shinji-kodama/venv-bootstrap/internal/runner/runnertest"
	"github.com/shinji-kodama/venv-bootstrap/internal/state"
	"github.com/shinji-kodama/venv-bootstrap/internal/venv"
)

// fixture is a working directory with a manifest, a fake toolchain and a
// bootstrapper wired to it.
type fixture struct {
	dir      string
	settings config.Settings
	rec      *runnertest.Recorder
	stdout   *bytes.Buffer

	// failOn makes the fake toolchain fail commands whose rendering
	// contains the given substring.
	failOn  string
	failErr error

	// skipLayout makes the fake venv module exit successfully without
	// producing an environment.
	skipLayout bool
}

// newFixture chdirs into a temp dir, writes requirements.txt with
// manifestContent and returns a fixture with default settings.
func newFixture(t *testing.T, manifestContent string) *fixture {
	t.Helper()

	dir := t.TempDir()
	testChdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultManifest), []byte(manifestContent), 0o644))

	f := &fixture{dir: dir, settings: config.Default(), stdout: &bytes.Buffer{}}
	f.rec = &runnertest.Recorder{Handler: f.handle(t)}
	return f
}

// handle stands in for the real tools: the venv module lays out an
// environment, pip commands succeed unless failOn matches.
func (f *fixture) handle(t *testing.T) func(context.Context, runner.Command) error {
	return func(_ context.Context, cmd runner.Command) error {
		if f.failOn != "" && strings.Contains(cmd.String(), f.failOn) {
			return f.failErr
		}
		if len(cmd.Args) == 3 && cmd.Args[1] == "venv" && !f.skipLayout {
			layout, err := venv.NewLayout(cmd.Args[2])
			require.NoError(t, err)
			require.NoError(t, os.MkdirAll(layout.BinDir, 0o755))
			require.NoError(t, os.WriteFile(layout.ConfigFile, []byte("version = 3.12.3\n"), 0o644))
			require.NoError(t, os.WriteFile(layout.Python, []byte("#!/bin/sh\n"), 0o755))
		}
		return nil
	}
}

func (f *fixture) run(t *testing.T) (*Report, error) {
	t.Helper()
	b := New(Options{Settings: f.settings, Runner: f.rec, Stdout: f.stdout})
	return b.Run(context.Background())
}

func (f *fixture) envRoot(t *testing.T) string {
	t.Helper()
	layout, err := venv.NewLayout(f.settings.EnvDir)
	require.NoError(t, err)
	return layout.Root
}

func statuses(report *Report) []model.StepStatus {
	out := make([]model.StepStatus, len(report.Results))
	for i, r := range report.Results {
		out[i] = r.Status
	}
	return out
}

// TestRun_OrderAndGuidance covers a successful run: the four steps run in
// the fixed order and the guidance message is the last output.
func TestRun_OrderAndGuidance(t *testing.T) {
	f := newFixture(t, "fastapi\nuvicorn[standard]\n")

	report, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.True(t, report.Installed)

	gotSteps := make([]model.Step, len(report.Results))
	for i, r := range report.Results {
		gotSteps[i] = r.Step
	}
	if diff := cmp.Diff(model.Steps(), gotSteps); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}

	root := f.envRoot(t)
	python := filepath.Join(root, "bin", "python")
	assert.Equal(t, []string{
		"python3 -m venv " + root,
		python + " -m pip install --upgrade pip",
		python + " -m pip install -r requirements.txt",
	}, f.rec.Lines())

	out := f.stdout.String()
	wantGuidance := "source venv/bin/activate && uvicorn app.main:app --host 0.0.0.0 --port 8000"
	assert.Equal(t, wantGuidance, report.Guidance)
	assert.True(t, strings.HasSuffix(out, "  "+wantGuidance+"\n"), "guidance must be the last output, got:\n%s", out)

	// Progress lines appear in step order before the guidance.
	last := -1
	for _, step := range model.Steps() {
		idx := strings.Index(out, step.Title())
		require.GreaterOrEqual(t, idx, 0, "missing progress for %s", step)
		assert.Greater(t, idx, last)
		last = idx
	}
	assert.Greater(t, strings.Index(out, GuidanceHeader), last)
}

// TestRun_EmptyManifest covers Scenario A.
func TestRun_EmptyManifest(t *testing.T) {
	f := newFixture(t, "")

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, model.ExitSuccess, model.ExitCodeFor(err))
	assert.True(t, report.Succeeded())
	assert.False(t, report.Installed)
	assert.Len(t, f.rec.Commands(), 2, "installer is not invoked for an empty manifest")
	assert.Contains(t, f.stdout.String(), Guidance(f.settings))
}

// TestRun_UnknownPackage covers Scenario B.
func TestRun_UnknownPackage(t *testing.T) {
	f := newFixture(t, "this-package-does-not-exist-anywhere\n")
	f.failOn = "-r requirements.txt"
	f.failErr = exec.Command("sh", "-c", "exit 1").Run()

	report, err := f.run(t)
	require.Error(t, err)

	var stepErr *model.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, model.StepInstallDeps, stepErr.Step)
	assert.Equal(t, model.ExitCode(1), model.ExitCodeFor(err))

	assert.Equal(t, []model.StepStatus{
		model.StatusSucceeded, model.StatusSucceeded, model.StatusSucceeded, model.StatusFailed,
	}, statuses(report))
	assert.Empty(t, report.Guidance)
	assert.NotContains(t, f.stdout.String(), GuidanceHeader)
}

// TestRun_EnvPathIsRegularFile covers Scenario C: creation fails, nothing
// else runs and the file is left alone.
func TestRun_EnvPathIsRegularFile(t *testing.T) {
	f := newFixture(t, "fastapi\n")
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "venv"), []byte("occupied"), 0o644))

	report, err := f.run(t)
	require.Error(t, err)

	assert.Equal(t, model.ExitEnvCreateFailed, model.ExitCodeFor(err))
	assert.Empty(t, f.rec.Commands())
	assert.Equal(t, []model.StepStatus{
		model.StatusFailed, model.StatusSkipped, model.StatusSkipped, model.StatusSkipped,
	}, statuses(report))
	assert.NotContains(t, f.stdout.String(), GuidanceHeader)

	content, readErr := os.ReadFile(filepath.Join(f.dir, "venv"))
	require.NoError(t, readErr)
	assert.Equal(t, "occupied", string(content))
}

// TestRun_FailFast checks, for each failing step, that no later step runs
// and the guidance is never printed.
func TestRun_FailFast(t *testing.T) {
	toolErr := errors.New("tool failed")

	tests := []struct {
		name       string
		configure  func(f *fixture)
		failed     model.Step
		wantCmds   int
		wantStatus []model.StepStatus
	}{
		{
			name:       "create",
			configure:  func(f *fixture) { f.failOn = "-m venv"; f.failErr = toolErr },
			failed:     model.StepCreateEnv,
			wantCmds:   1,
			wantStatus: []model.StepStatus{model.StatusFailed, model.StatusSkipped, model.StatusSkipped, model.StatusSkipped},
		},
		{
			name:       "activate",
			configure:  func(f *fixture) { f.skipLayout = true },
			failed:     model.StepActivateEnv,
			wantCmds:   1,
			wantStatus: []model.StepStatus{model.StatusSucceeded, model.StatusFailed, model.StatusSkipped, model.StatusSkipped},
		},
		{
			name:       "upgrade",
			configure:  func(f *fixture) { f.failOn = "--upgrade pip"; f.failErr = toolErr },
			failed:     model.StepUpgradeInstaller,
			wantCmds:   2,
			wantStatus: []model.StepStatus{model.StatusSucceeded, model.StatusSucceeded, model.StatusFailed, model.StatusSkipped},
		},
		{
			name:       "install",
			configure:  func(f *fixture) { f.failOn = "-r requirements.txt"; f.failErr = toolErr },
			failed:     model.StepInstallDeps,
			wantCmds:   3,
			wantStatus: []model.StepStatus{model.StatusSucceeded, model.StatusSucceeded, model.StatusSucceeded, model.StatusFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "fastapi\n")
			tt.configure(f)

			report, err := f.run(t)
			require.Error(t, err)
			assert.NotEqual(t, model.ExitSuccess, model.ExitCodeFor(err))

			step, ok := report.FailedStep()
			require.True(t, ok)
			assert.Equal(t, tt.failed, step)
			assert.Len(t, f.rec.Commands(), tt.wantCmds)
			assert.Equal(t, tt.wantStatus, statuses(report))
			assert.False(t, report.Succeeded())
			assert.NotContains(t, f.stdout.String(), GuidanceHeader)
		})
	}
}

// TestRun_MissingManifest verifies that an absent manifest fails step 4 with
// its own exit code after the environment was prepared.
func TestRun_MissingManifest(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.Remove(filepath.Join(f.dir, config.DefaultManifest)))

	report, err := f.run(t)
	require.Error(t, err)

	assert.Equal(t, model.ExitManifestNotFound, model.ExitCodeFor(err))
	step, _ := report.FailedStep()
	assert.Equal(t, model.StepInstallDeps, step)
	assert.Len(t, f.rec.Commands(), 2)
}

// TestRun_Rerun covers P3: a second run over an existing environment
// succeeds and replaces the record.
func TestRun_Rerun(t *testing.T) {
	f := newFixture(t, "fastapi\n")

	first, err := f.run(t)
	require.NoError(t, err)
	second, err := f.run(t)
	require.NoError(t, err)

	assert.True(t, second.Succeeded())
	assert.NotEqual(t, first.RunID, second.RunID)

	rec, err := state.Load(f.envRoot(t))
	require.NoError(t, err)
	assert.Equal(t, second.RunID, rec.RunID)
	assert.True(t, rec.Succeeded)
}

// TestRun_WritesOnlyInsideEnvironment covers P4: after a run the working
// directory holds only the manifest and the environment directory.
func TestRun_WritesOnlyInsideEnvironment(t *testing.T) {
	f := newFixture(t, "fastapi\n")

	_, err := f.run(t)
	require.NoError(t, err)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{config.DefaultManifest, "venv"}, names)

	content, err := os.ReadFile(filepath.Join(f.dir, config.DefaultManifest))
	require.NoError(t, err)
	assert.Equal(t, "fastapi\n", string(content), "manifest is only read")
}

func TestRun_RecordsFailure(t *testing.T) {
	f := newFixture(t, "fastapi\n")
	f.failOn = "--upgrade pip"
	f.failErr = errors.New("registry unavailable")

	report, err := f.run(t)
	require.Error(t, err)

	rec, loadErr := state.Load(f.envRoot(t))
	require.NoError(t, loadErr)
	assert.Equal(t, report.RunID, rec.RunID)
	assert.False(t, rec.Succeeded)
	require.Len(t, rec.Steps, 4)
	assert.Equal(t, model.StatusFailed, rec.Steps[2].Status)
	assert.Contains(t, rec.Steps[2].Error, "registry unavailable")
	assert.Equal(t, model.StatusSkipped, rec.Steps[3].Status)
}

func TestRun_SkipRecord(t *testing.T) {
	f := newFixture(t, "fastapi\n")

	b := New(Options{Settings: f.settings, Runner: f.rec, Stdout: f.stdout, SkipRecord: true})
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	_, err = state.Load(f.envRoot(t))
	assert.ErrorIs(t, err, state.ErrNoRecord)
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, "fastapi\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(Options{Settings: f.settings, Runner: f.rec, Stdout: f.stdout})
	report, err := b.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.rec.Commands())

	step, _ := report.FailedStep()
	assert.Equal(t, model.StepCreateEnv, step)
}

// TestRun_CustomSettings verifies that configured paths and launch
// parameters flow through to the commands and the guidance.
func TestRun_CustomSettings(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "prod.txt"), []byte("gunicorn\n"), 0o644))
	f.settings.EnvDir = ".venv"
	f.settings.Manifest = "prod.txt"
	f.settings.Python = "python3.12"
	f.settings.App = "service.api:app"
	f.settings.Port = 9000

	report, err := f.run(t)
	require.NoError(t, err)

	lines := f.rec.Lines()
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "python3.12 -m venv "))
	assert.True(t, strings.HasSuffix(lines[2], "-r prod.txt"))
	assert.Equal(t, "source .venv/bin/activate && uvicorn service.api:app --host 0.0.0.0 --port 9000", report.Guidance)
}

// TestRun_WarnsWhenLaunchPortBusy verifies that an occupied launch port
// produces a warning on the log without failing the run or displacing the
// guidance as the last output.
func TestRun_WarnsWhenLaunchPortBusy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	busy := ln.Addr().(*net.TCPAddr).Port

	f := newFixture(t, "")
	f.settings.Host = "127.0.0.1"
	f.settings.Port = busy

	var logs bytes.Buffer
	b := New(Options{
		Settings: f.settings,
		Runner:   f.rec,
		Stdout:   f.stdout,
		Log:      logging.NewWithWriter(&logs, false),
		Ports:    port.NewScanner("127.0.0.1"),
	})
	report, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "launch port is not available")
	assert.Contains(t, logs.String(), "suggested_port")
	assert.True(t, strings.HasSuffix(f.stdout.String(), "  "+report.Guidance+"\n"))
}
