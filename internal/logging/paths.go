package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.citeseek/logs).
// Falls back to the temp directory when the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".citeseek", "logs")
	}
	return filepath.Join(home, ".citeseek", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "citeseek.log")
}
