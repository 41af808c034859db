// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
)

// EnvStateDir overrides the state directory location when set.
const EnvStateDir = "CORDEE_STATE_DIR"

// StateDir resolves the directory for cordee's local state (log file,
// trace output).
//
// Resolution order:
//   - CORDEE_STATE_DIR, when set
//   - <user cache dir>/cordee
//   - ./.cordee as a last resort when no cache dir is resolvable
func StateDir() string {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return filepath.Clean(dir)
	}
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, "cordee")
	}
	return filepath.Clean(".cordee")
}

// LogFile returns the debug log path inside the state directory.
func LogFile() string {
	return filepath.Join(StateDir(), "debug.log")
}

// TracesFile returns the default trace export path inside the state directory.
func TracesFile() string {
	return filepath.Join(StateDir(), "traces", "traces.jsonl")
}

// ConfigDir resolves the user config directory for cordee.
// Falls back to ./.cordee when the home directory is unavailable.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(".cordee")
	}
	return filepath.Join(home, ".config", "cordee")
}

// ConfigFile returns the user config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
