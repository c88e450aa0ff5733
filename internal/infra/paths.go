// Package infra provides infrastructure utilities.
package infra

import (
	"os"
	"path/filepath"

	"github.com/jacobdh/eventmq/internal/config"
)

// Paths holds commonly used paths.
var Paths = struct {
	ConfigDir string
	DataDir   string
	LogDir    string
}{
	ConfigDir: resolveConfigDir(),
	DataDir:   resolveDataDir(),
	LogDir:    resolveLogDir(),
}

func resolveConfigDir() string {
	return config.StateDir()
}

func resolveDataDir() string {
	return filepath.Join(config.StateDir(), "data")
}

func resolveLogDir() string {
	return filepath.Join(config.StateDir(), "logs")
}

// LockPath is the scheduler's single-writer lock file.
func LockPath() string {
	return filepath.Join(Paths.DataDir, "scheduler.lock")
}

// EnsureDirs creates all required directories.
func EnsureDirs() error {
	dirs := []string{
		Paths.ConfigDir,
		Paths.DataDir,
		Paths.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}
