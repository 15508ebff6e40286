// Package pip drives the package installer inside an activated environment.
//
// Both operations run the environment's own interpreter with "-m pip" and
// the activation overlay, so nothing is ever installed into the system
// interpreter even if a stray pip sits earlier on PATH.
package pip

import (
	"context"

	"github.com/shinji-kodama/venv-bootstrap/internal/logging"
	"github.com/shinji-kodama/venv-bootstrap/internal/manifest"
	"github.com/shinji-kodama/venv-bootstrap/internal/runner"
	"github.com/shinji-kodama/venv-bootstrap/internal/venv"
)

// Installer runs installer commands through a runner.Runner.
type Installer struct {
	runner runner.Runner
	log    *logging.Logger
}

// NewInstaller returns an Installer that runs tools through r.
func NewInstaller(r runner.Runner, log *logging.Logger) *Installer {
	if log == nil {
		log = logging.NewNop()
	}
	return &Installer{runner: r, log: log}
}

// UpgradeCommand returns the command that upgrades pip in the environment.
func UpgradeCommand(act *venv.Activation) runner.Command {
	return runner.Command{
		Name: act.Layout.Python,
		Args: []string{"-m", "pip", "install", "--upgrade", "pip"},
		Env:  act.Env,
	}
}

// InstallCommand returns the command that installs everything declared in
// the manifest at manifestPath.
func InstallCommand(act *venv.Activation, manifestPath string) runner.Command {
	return runner.Command{
		Name: act.Layout.Python,
		Args: []string{"-m", "pip", "install", "-r", manifestPath},
		Env:  act.Env,
	}
}

// Upgrade brings pip in the activated environment to its latest version.
func (i *Installer) Upgrade(ctx context.Context, act *venv.Activation) error {
	i.log.Debug("upgrading installer", "python", act.Layout.Python)
	return i.runner.Run(ctx, UpgradeCommand(act))
}

// Install installs every entry of m into the activated environment.
//
// A manifest that declares nothing succeeds without invoking the installer
// and reports installed=false. Installing into an environment that already
// satisfies the manifest is a no-op for the installer, which is what makes
// re-runs safe.
func (i *Installer) Install(ctx context.Context, act *venv.Activation, m *manifest.Manifest) (installed bool, err error) {
	if m.IsEmpty() {
		i.log.Info("manifest declares no dependencies, nothing to install", "manifest", m.Path)
		return false, nil
	}

	i.log.Debug("installing dependencies",
		"manifest", m.Path,
		"requirements", len(m.Requirements),
		"options", len(m.Options),
	)
	if err := i.runner.Run(ctx, InstallCommand(act, m.Path)); err != nil {
		return false, err
	}
	return true, nil
}
