// Package reveal shows a path in the platform file manager.
package reveal

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	"quickseek/internal/logging"
)

// Command returns the program and arguments that reveal path on goos.
// Windows and macOS select the entry inside its folder; elsewhere the parent
// directory is opened.
func Command(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		return "explorer.exe", []string{"/select," + path}
	case "darwin":
		return "open", []string{"-R", path}
	default:
		return "xdg-open", []string{filepath.Dir(path)}
	}
}

// Open starts the file manager and returns without waiting for it. Failures
// are logged, never returned to the caller.
func Open(path string) {
	if err := start(runtime.GOOS, path); err != nil {
		logging.Named("reveal").Warn("failed to reveal path",
			logging.String("path", path),
			logging.Err(err))
	}
}

func start(goos, path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	name, args := Command(goos, path)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	// Reap the child in the background.
	go func() { _ = cmd.Wait() }()
	return nil
}
