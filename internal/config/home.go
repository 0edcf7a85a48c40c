package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// modulePath identifies this repository's go.mod when locating the home directory
const modulePath = "github.com/harrison/codescope"

// GetHome returns the codescope home directory
// Priority order:
//  1. CODESCOPE_HOME environment variable (if set)
//  2. Repository root (detected by .codescope-root or this module's go.mod)
//  3. Current working directory (fallback)
//
// The directory is created if it doesn't exist
func GetHome() (string, error) {
	if home := os.Getenv("CODESCOPE_HOME"); home != "" {
		return home, nil
	}

	base, err := findRepoRoot()
	if err != nil || base == "" {
		base, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
	}

	home := filepath.Join(base, ".codescope")
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create codescope home directory: %w", err)
	}
	return home, nil
}

// findRepoRoot walks up from the working directory looking for a
// .codescope-root marker or a go.mod declaring this module
func findRepoRoot() (string, error) {
	current, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(current, ".codescope-root")); err == nil {
			return current, nil
		}
		if data, err := os.ReadFile(filepath.Join(current, "go.mod")); err == nil {
			if strings.Contains(string(data), "module "+modulePath) {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("codescope root not found (looking for .codescope-root or go.mod with %s)", modulePath)
}

// ResolvePath makes a relative configured path absolute against the home
// directory's parent, so ".codescope/history.db" lands next to the home.
// Absolute paths and the empty string are returned unchanged.
func ResolvePath(home, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(home), path)
}
