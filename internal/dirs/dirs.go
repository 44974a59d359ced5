// Package dirs resolves the per-user directory that holds local application data.
package dirs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// envDataHome is the XDG base directory variable for user data files.
const envDataHome = "XDG_DATA_HOME"

// ErrNoHome is returned when neither XDG_DATA_HOME nor a home directory is known.
var ErrNoHome = errors.New("dirs: no home directory")

// DataHome returns $XDG_DATA_HOME, or ~/.local/share when it is unset.
func DataHome() (string, error) {
	if dir := os.Getenv(envDataHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", ErrNoHome
	}
	return filepath.Join(home, ".local", "share"), nil
}

// DataDir returns <DataHome>/<app>, creating it when missing.
func DataDir(app string) (string, error) {
	base, err := DataHome()
	if err != nil {
		return "", err
	}
	return Ensure(filepath.Join(base, app))
}

// Ensure creates dir (and parents) when missing and returns it.
func Ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("dirs: create %s: %w", dir, err)
	}
	return dir, nil
}
