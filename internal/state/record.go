// Package state persists the outcome of the last bootstrap run.
//
// The record lives inside the environment directory itself, next to
// pyvenv.cfg, so the bootstrapper never writes outside the directory it
// provisions. Deleting the environment deletes its history with it.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/venv-bootstrap/internal/model"
)

// FileName is the record's file name inside the environment directory.
const FileName = "bootstrap-state.yaml"

// ErrNoRecord is returned by Load when the environment has no record.
var ErrNoRecord = errors.New("no bootstrap record found")

// Record describes one bootstrap run.
type Record struct {
	// RunID uniquely identifies the run. It also tags log lines.
	RunID string `yaml:"run_id"`

	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`

	// Interpreter is the interpreter the environment was created with.
	Interpreter string `yaml:"interpreter"`

	// EnvDir is the absolute environment directory.
	EnvDir string `yaml:"env_dir"`

	Manifest ManifestInfo `yaml:"manifest"`

	// Steps holds one entry per provisioning step in execution order.
	Steps []StepEntry `yaml:"steps"`

	// Succeeded is true only when every step succeeded.
	Succeeded bool `yaml:"succeeded"`
}

// ManifestInfo summarizes the manifest the run installed from.
type ManifestInfo struct {
	Path         string `yaml:"path"`
	SHA256       string `yaml:"sha256,omitempty"`
	Requirements int    `yaml:"requirements"`
}

// StepEntry is the serialized form of a model.StepResult.
type StepEntry struct {
	Step     model.Step       `yaml:"step"`
	Status   model.StepStatus `yaml:"status"`
	Duration string           `yaml:"duration,omitempty"`
	Error    string           `yaml:"error,omitempty"`
}

// NewRecord starts a record for a new run with a fresh run id.
func NewRecord(interpreter, envDir string, started time.Time) *Record {
	return &Record{
		RunID:       uuid.NewString(),
		StartedAt:   started.UTC(),
		Interpreter: interpreter,
		EnvDir:      envDir,
	}
}

// SetResults copies step results into the record and derives Succeeded.
func (r *Record) SetResults(results []model.StepResult) {
	r.Steps = make([]StepEntry, 0, len(results))
	succeeded := len(results) > 0
	for _, res := range results {
		entry := StepEntry{Step: res.Step, Status: res.Status}
		if res.Duration > 0 {
			entry.Duration = res.Duration.Round(time.Millisecond).String()
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		if res.Status != model.StatusSucceeded {
			succeeded = false
		}
		r.Steps = append(r.Steps, entry)
	}
	r.Succeeded = succeeded
}

// Results converts the record's entries back to model.StepResult values.
// Errors are restored as plain errors carrying the recorded message.
func (r *Record) Results() ([]model.StepResult, error) {
	out := make([]model.StepResult, 0, len(r.Steps))
	for _, e := range r.Steps {
		if !e.Step.IsValid() {
			return nil, fmt.Errorf("invalid step %q in record", e.Step)
		}
		if !e.Status.IsValid() {
			return nil, fmt.Errorf("invalid status %q for step %s", e.Status, e.Step)
		}
		res := model.StepResult{Step: e.Step, Status: e.Status}
		if e.Duration != "" {
			d, err := time.ParseDuration(e.Duration)
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q for step %s: %w", e.Duration, e.Step, err)
			}
			res.Duration = d
		}
		if e.Error != "" {
			res.Err = errors.New(e.Error)
		}
		out = append(out, res)
	}
	return out, nil
}

// Path returns the record location for the environment at envDir.
func Path(envDir string) string {
	return filepath.Join(envDir, FileName)
}

// Save writes the record into envDir. The write goes through a temporary
// file in the same directory and a rename, so a reader never sees a
// half-written record.
func Save(envDir string, r *Record) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode bootstrap record: %w", err)
	}

	tmp, err := os.CreateTemp(envDir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write bootstrap record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write bootstrap record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write bootstrap record: %w", err)
	}
	if err := os.Rename(tmpName, Path(envDir)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write bootstrap record: %w", err)
	}
	return nil
}

// Load reads the record stored in envDir.
// It returns ErrNoRecord when the environment has none.
func Load(envDir string) (*Record, error) {
	data, err := os.ReadFile(Path(envDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("failed to read bootstrap record: %w", err)
	}

	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse bootstrap record %s: %w", Path(envDir), err)
	}
	if _, err := uuid.Parse(r.RunID); err != nil {
		return nil, fmt.Errorf("bootstrap record %s has invalid run id %q: %w", Path(envDir), r.RunID, err)
	}
	return &r, nil
}
