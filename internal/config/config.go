package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// HomeEnv overrides the configuration directory
	HomeEnv = "LOADTEST_HOME"
)

var (
	// ConfigDir is the global configuration directory (~/.loadtest)
	ConfigDir string

	// PlansDir holds saved test plans
	PlansDir string

	// ReportsDir is the default destination for written reports
	ReportsDir string

	// DatabasePath is the SQLite database file for run history
	DatabasePath string
)

// Initialize sets up the configuration directories.
// It creates ~/.loadtest/ (or $LOADTEST_HOME) if it doesn't exist.
func Initialize() error {
	dir := os.Getenv(HomeEnv)
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".loadtest")
	}
	return InitializeAt(dir)
}

// InitializeAt sets up the configuration directories under dir
func InitializeAt(dir string) error {
	ConfigDir = dir
	PlansDir = filepath.Join(ConfigDir, "plans")
	ReportsDir = filepath.Join(ConfigDir, "reports")
	DatabasePath = filepath.Join(ConfigDir, "loadtest.db")

	for _, d := range []string{ConfigDir, PlansDir, ReportsDir} {
		if err := os.MkdirAll(d, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}

// ResolvePlan returns the path of a plan file.
// Existing paths are used as given; bare names are looked up in PlansDir,
// trying the .yaml, .yml, .json and .jsonc extensions when none is given.
func ResolvePlan(name string) (string, error) {
	if strings.HasPrefix(name, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		name = filepath.Join(homeDir, name[2:])
	}
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	if filepath.IsAbs(name) || PlansDir == "" {
		return "", fmt.Errorf("plan file not found: %s", name)
	}

	candidates := []string{filepath.Join(PlansDir, name)}
	if filepath.Ext(name) == "" {
		for _, ext := range []string{".yaml", ".yml", ".json", ".jsonc"} {
			candidates = append(candidates, filepath.Join(PlansDir, name+ext))
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("plan file not found: %s (also looked in %s)", name, PlansDir)
}
