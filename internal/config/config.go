// Package config resolves the settings of a bootstrap run.
//
// Sources are layered with viper, lowest precedence first:
//  1. built-in defaults (the fixed paths of the original bootstrap script)
//  2. a config file: --config, or .venv-bootstrap.yaml in the working directory
//  3. VENV_BOOTSTRAP_* environment variables
//  4. command-line flags
//
// Config files may be YAML or JSON. JSON files may carry comments (JSONC);
// they are stripped with github.com/tidwall/jsonc before viper sees them.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/venv-bootstrap/internal/model"
)

// Setting keys. Flags use the same names with "-" instead of "_".
const (
	KeyEnvDir   = "env_dir"
	KeyManifest = "manifest"
	KeyPython   = "python"
	KeyApp      = "app"
	KeyHost     = "host"
	KeyPort     = "port"
)

// Defaults reproduce the fixed behavior of the original script.
const (
	DefaultEnvDir   = "venv"
	DefaultManifest = "requirements.txt"
	DefaultPython   = "python3"
	DefaultApp      = "app.main:app"
	DefaultHost     = "0.0.0.0"
	DefaultPort     = 8000
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "VENV_BOOTSTRAP"

// DefaultConfigFile is read from the working directory when --config is
// not given. Its absence is not an error.
const DefaultConfigFile = ".venv-bootstrap.yaml"

// Settings is the resolved configuration of one run.
type Settings struct {
	// EnvDir is where the isolated environment is created.
	EnvDir string `mapstructure:"env_dir" json:"envDir"`

	// Manifest is the dependency manifest handed to the installer.
	Manifest string `mapstructure:"manifest" json:"manifest"`

	// Python is the interpreter used to create the environment.
	Python string `mapstructure:"python" json:"python"`

	// App is the ASGI application named in the guidance message.
	App string `mapstructure:"app" json:"app"`

	// Host is the bind address named in the guidance message.
	Host string `mapstructure:"host" json:"host"`

	// Port is the port named in the guidance message.
	Port int `mapstructure:"port" json:"port"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		EnvDir:   DefaultEnvDir,
		Manifest: DefaultManifest,
		Python:   DefaultPython,
		App:      DefaultApp,
		Host:     DefaultHost,
		Port:     DefaultPort,
	}
}

// Validate rejects settings that cannot produce a meaningful run.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.EnvDir) == "" {
		return fmt.Errorf("%s must not be empty", KeyEnvDir)
	}
	// The environment directory may later be removed wholesale; refuse
	// paths that name the working directory or the filesystem root.
	if clean := filepath.Clean(s.EnvDir); clean == "." || clean == string(filepath.Separator) {
		return fmt.Errorf("%s %q would place the environment over an existing tree", KeyEnvDir, s.EnvDir)
	}
	if strings.TrimSpace(s.Manifest) == "" {
		return fmt.Errorf("%s must not be empty", KeyManifest)
	}
	if strings.TrimSpace(s.Python) == "" {
		return fmt.Errorf("%s must not be empty", KeyPython)
	}
	if strings.TrimSpace(s.App) == "" {
		return fmt.Errorf("%s must not be empty", KeyApp)
	}
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("%s must not be empty", KeyHost)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("%s %d out of range (1-65535)", KeyPort, s.Port)
	}
	return nil
}

// New returns a viper instance with defaults and environment overrides
// registered. A dedicated instance (rather than the viper global) keeps
// tests and repeated command construction independent.
func New() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault(KeyEnvDir, d.EnvDir)
	v.SetDefault(KeyManifest, d.Manifest)
	v.SetDefault(KeyPython, d.Python)
	v.SetDefault(KeyApp, d.App)
	v.SetDefault(KeyHost, d.Host)
	v.SetDefault(KeyPort, d.Port)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags adds one flag per setting to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(flagName(KeyEnvDir), d.EnvDir, "Directory of the virtual environment")
	fs.String(flagName(KeyManifest), d.Manifest, "Dependency manifest to install from")
	fs.String(flagName(KeyPython), d.Python, "Interpreter used to create the environment")
	fs.String(flagName(KeyApp), d.App, "ASGI application named in the launch command")
	fs.String(flagName(KeyHost), d.Host, "Bind address named in the launch command")
	fs.Int(flagName(KeyPort), d.Port, "Port named in the launch command")
}

// BindFlags binds the flags registered by RegisterFlags to v. Only flags
// the user actually set override lower layers.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, key := range []string{KeyEnvDir, KeyManifest, KeyPython, KeyApp, KeyHost, KeyPort} {
		f := fs.Lookup(flagName(key))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	}
	return nil
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// ReadFile merges the config file at path into v.
//
// When explicit is false, a missing file is silently ignored; this is how
// the optional DefaultConfigFile is handled.
func ReadFile(v *viper.Viper, path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".jsonc":
		v.SetConfigType("json")
		raw = jsonc.ToJSON(raw)
	case ".yaml", ".yml", "":
		v.SetConfigType("yaml")
	default:
		return fmt.Errorf("unsupported config file type %q (use .yaml, .yml, .json or .jsonc)", ext)
	}

	if err := v.MergeConfig(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Load resolves Settings from v after reading the config file. configFile
// is the --config value; empty means "use DefaultConfigFile if present".
// Every failure is a CLIError with ExitConfigError.
func Load(v *viper.Viper, configFile string) (Settings, error) {
	path, explicit := configFile, true
	if path == "" {
		path, explicit = DefaultConfigFile, false
	}
	if err := ReadFile(v, path, explicit); err != nil {
		return Settings{}, model.WrapCLIError(model.ExitConfigError, "invalid configuration", err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, model.WrapCLIError(model.ExitConfigError, "invalid configuration", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, model.WrapCLIError(model.ExitConfigError, "invalid configuration", err)
	}
	return s, nil
}
