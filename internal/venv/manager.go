package venv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shinji-kodama/venv-bootstrap/internal/logging"
	"github.com/shinji-kodama/venv-bootstrap/internal/model"
	"github.com/shinji-kodama/venv-bootstrap/internal/runner"
)

// ConfigFileName is the marker file every virtual environment carries at
// its root. Its presence is what distinguishes an environment from an
// arbitrary directory.
const ConfigFileName = "pyvenv.cfg"

// ErrNotDirectory is returned when the environment path exists but is not
// a directory.
var ErrNotDirectory = errors.New("path exists and is not a directory")

// ErrNotEnvironment is returned when a directory does not look like a
// virtual environment.
var ErrNotEnvironment = errors.New("directory is not a virtual environment")

// Layout holds the well-known paths inside a virtual environment.
//
// The structure is owned by the environment tool. Only the parts the
// bootstrapper relies on are described here.
type Layout struct {
	// Root is the absolute environment directory.
	Root string

	// BinDir holds the environment's executables
	// ("bin" on POSIX, "Scripts" on Windows).
	BinDir string

	// Python is the environment's interpreter.
	Python string

	// ActivateScript is the shell activation script an operator sources.
	ActivateScript string

	// ConfigFile is the pyvenv.cfg marker file.
	ConfigFile string
}

// NewLayout computes the layout for dir on the current platform.
// dir is resolved to an absolute path.
func NewLayout(dir string) (Layout, error) {
	return newLayout(dir, runtime.GOOS)
}

func newLayout(dir, goos string) (Layout, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve environment path %q: %w", dir, err)
	}

	binName, pythonName, activateName := "bin", "python", "activate"
	if goos == "windows" {
		binName, pythonName, activateName = "Scripts", "python.exe", "activate.bat"
	}

	bin := filepath.Join(root, binName)
	return Layout{
		Root:           root,
		BinDir:         bin,
		Python:         filepath.Join(bin, pythonName),
		ActivateScript: filepath.Join(bin, activateName),
		ConfigFile:     filepath.Join(root, ConfigFileName),
	}, nil
}

// Activation is the scoped result of activating an environment: the
// overlay every later child process runs with.
type Activation struct {
	Layout Layout

	// Env is applied on top of the process environment for child processes.
	Env *runner.Overlay
}

// Manager creates, activates and removes virtual environments by invoking
// the interpreter's own venv module.
type Manager struct {
	runner runner.Runner
	log    *logging.Logger
}

// NewManager returns a Manager that runs tools through r.
func NewManager(r runner.Runner, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{runner: r, log: log}
}

// CreateCommand returns the command that builds an environment at dir.
func CreateCommand(interpreter, dir string) runner.Command {
	return runner.Command{Name: interpreter, Args: []string{"-m", "venv", dir}}
}

// Create builds an isolated environment at dir using interpreter.
//
// If dir already exists and is a regular file, Create fails before the
// tool runs. An existing directory is handed to the tool as-is, which
// reuses a valid environment.
func (m *Manager) Create(ctx context.Context, interpreter, dir string) (Layout, error) {
	layout, err := NewLayout(dir)
	if err != nil {
		return Layout{}, model.WrapCLIError(model.ExitEnvCreateFailed, "invalid environment path", err)
	}

	// Symlinks are handed to the tool unresolved.
	info, err := os.Lstat(layout.Root)
	switch {
	case err == nil && !info.IsDir() && info.Mode()&os.ModeSymlink == 0:
		return Layout{}, model.WrapCLIError(model.ExitEnvCreateFailed,
			fmt.Sprintf("cannot create environment at %s", layout.Root), ErrNotDirectory)
	case err == nil:
		m.log.Debug("environment path already exists, reusing", "path", layout.Root)
	case !os.IsNotExist(err):
		return Layout{}, model.WrapCLIError(model.ExitEnvCreateFailed,
			fmt.Sprintf("cannot inspect %s", layout.Root), err)
	}

	if err := m.runner.Run(ctx, CreateCommand(interpreter, layout.Root)); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// Activate verifies the environment at dir and builds its activation
// overlay: VIRTUAL_ENV points at the root, the bin directory is prepended
// to PATH, and PYTHONHOME is removed.
//
// The process's own environment is not modified.
func (m *Manager) Activate(dir string) (*Activation, error) {
	layout, err := NewLayout(dir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitActivationFailed, "invalid environment path", err)
	}

	if err := Verify(layout); err != nil {
		return nil, model.WrapCLIError(model.ExitActivationFailed,
			fmt.Sprintf("malformed environment at %s", layout.Root), err)
	}

	path := layout.BinDir
	if current := os.Getenv("PATH"); current != "" {
		path = layout.BinDir + string(os.PathListSeparator) + current
	}

	env := runner.NewOverlay().
		Set("VIRTUAL_ENV", layout.Root).
		Set("PATH", path).
		Unset("PYTHONHOME")

	m.log.Debug("environment activated", "root", layout.Root, "python", layout.Python)
	return &Activation{Layout: layout, Env: env}, nil
}

// Verify checks that layout describes a usable environment: the root and
// bin directories exist, the marker file is present and the interpreter is
// a regular file.
func Verify(layout Layout) error {
	if err := requireDir(layout.Root); err != nil {
		return err
	}
	if _, err := os.Stat(layout.ConfigFile); err != nil {
		return fmt.Errorf("%w: missing %s", ErrNotEnvironment, ConfigFileName)
	}
	if err := requireDir(layout.BinDir); err != nil {
		return err
	}
	info, err := os.Stat(layout.Python)
	if err != nil {
		return fmt.Errorf("interpreter not found at %s: %w", layout.Python, err)
	}
	if info.IsDir() {
		return fmt.Errorf("interpreter path %s is a directory", layout.Python)
	}
	return nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}
	return nil
}

// IsEnvironment reports whether dir contains the pyvenv.cfg marker.
func IsEnvironment(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil && !info.IsDir()
}

// Remove deletes the environment at dir. Unless force is set, dir must
// carry the pyvenv.cfg marker so that an arbitrary directory is never
// wiped by a mistyped path. A missing dir is not an error.
func (m *Manager) Remove(dir string, force bool) error {
	layout, err := NewLayout(dir)
	if err != nil {
		return err
	}

	info, err := os.Lstat(layout.Root)
	if os.IsNotExist(err) {
		m.log.Debug("nothing to remove", "path", layout.Root)
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", layout.Root, ErrNotDirectory)
	}
	if !force && !IsEnvironment(layout.Root) {
		return fmt.Errorf("%s: %w (use --force to remove anyway)", layout.Root, ErrNotEnvironment)
	}

	m.log.Debug("removing environment", "path", layout.Root)
	return os.RemoveAll(layout.Root)
}

// ReadConfig parses the environment's pyvenv.cfg into a key/value map.
//
// The file is a flat list of "key = value" lines, for example:
//
//	home = /usr/bin
//	include-system-site-packages = false
//	version = 3.12.3
func ReadConfig(dir string) (map[string]string, error) {
	f, err := os.Open(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		cfg[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
	}
	return cfg, nil
}
