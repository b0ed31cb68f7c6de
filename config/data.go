package config

import (
	"os"
	"path/filepath"
)

// getDataDir determines the data directory path from environment or default.
// Priority: HLSWORKER_DATA_DIR environment variable > "./data" default
func getDataDir() string {
	if dir := os.Getenv("HLSWORKER_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetDataDir returns the current data directory path.
// The environment is checked on every call so tests can point it elsewhere.
func GetDataDir() string {
	return getDataDir()
}

// GetFailuresDBPath returns the full path to the failures database.
// The failures database keeps runs that were aborted after filtering.
// Path: {DATA_DIR}/failures.db
func GetFailuresDBPath() string {
	return filepath.Join(GetDataDir(), "failures.db")
}

// GetSuccessDBPath returns the full path to the success database.
// The success database keeps runs that published a master playlist.
// Path: {DATA_DIR}/success.db
func GetSuccessDBPath() string {
	return filepath.Join(GetDataDir(), "success.db")
}
