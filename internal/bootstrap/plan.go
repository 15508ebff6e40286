package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shinji-kodama/venv-bootstrap/internal/config"
	"github.com/shinji-kodama/venv-bootstrap/internal/model"
	"github.com/shinji-kodama/venv-bootstrap/internal/pip"
	"github.com/shinji-kodama/venv-bootstrap/internal/venv"
)

// PlannedStep is one entry of a dry-run plan.
type PlannedStep struct {
	Step model.Step

	// Action is the command line, or for activation the environment
	// changes, that the step would apply.
	Action string
}

// Plan returns what a run with s would do, in execution order, without
// touching the filesystem or starting any process.
func Plan(s config.Settings) ([]PlannedStep, error) {
	layout, err := venv.NewLayout(s.EnvDir)
	if err != nil {
		return nil, err
	}
	act := &venv.Activation{Layout: layout}

	activation := fmt.Sprintf("VIRTUAL_ENV=%s PATH=%s%c$PATH (unset PYTHONHOME)",
		layout.Root, layout.BinDir, os.PathListSeparator)

	return []PlannedStep{
		{Step: model.StepCreateEnv, Action: venv.CreateCommand(s.Python, layout.Root).String()},
		{Step: model.StepActivateEnv, Action: activation},
		{Step: model.StepUpgradeInstaller, Action: pip.UpgradeCommand(act).String()},
		{Step: model.StepInstallDeps, Action: pip.InstallCommand(act, s.Manifest).String()},
	}, nil
}

// WritePlan renders plan followed by the guidance a successful run would
// print.
func WritePlan(w io.Writer, s config.Settings, plan []PlannedStep) {
	var b strings.Builder
	for i, p := range plan {
		fmt.Fprintf(&b, "[%d/%d] %s\n      %s\n", i+1, len(plan), p.Step.Title(), p.Action)
	}
	fmt.Fprintf(&b, "\n%s\n  %s\n", GuidanceHeader, Guidance(s))
	_, _ = io.WriteString(w, b.String())
}
