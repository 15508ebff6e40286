package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_InfoLevelByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)

	log.Debug("hidden debug")
	log.Info("visible info", "step", "create-env")
	log.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden debug")
	assert.Contains(t, out, "visible info")
	assert.Contains(t, out, "create-env")
}

func TestLogger_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, true)

	log.Debug("debug line", "n", 3)
	log.Sync()

	assert.Contains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "DEBUG")
}

func TestLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false).With("run", "abc123")

	log.Warn("careful")
	log.Sync()

	assert.Contains(t, buf.String(), "abc123")
	assert.Contains(t, buf.String(), "WARN")
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() {
		log.Error("nothing happens")
		log.Sync()
	})
}
