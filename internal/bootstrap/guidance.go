package bootstrap

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/shinji-kodama/venv-bootstrap/internal/config"
)

// GuidanceHeader introduces the launch command after a successful run.
const GuidanceHeader = "Setup complete. To start the server, run:"

// Guidance returns the launch instruction for s on the current platform:
// activate the environment, then start the ASGI server.
//
// With default settings on POSIX this is:
//
//	source venv/bin/activate && uvicorn app.main:app --host 0.0.0.0 --port 8000
func Guidance(s config.Settings) string {
	return guidanceFor(s, runtime.GOOS)
}

func guidanceFor(s config.Settings, goos string) string {
	server := fmt.Sprintf("uvicorn %s --host %s --port %d", s.App, s.Host, s.Port)

	if goos == "windows" {
		// Backslashes are rendered literally; the operator runs this on Windows.
		return fmt.Sprintf(`%s\Scripts\activate && %s`, filepath.Clean(s.EnvDir), server)
	}
	return fmt.Sprintf("source %s && %s", filepath.ToSlash(filepath.Join(s.EnvDir, "bin", "activate")), server)
}
