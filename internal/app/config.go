package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/refresher/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "refresher"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# refresher configuration
# Run: refresher --help

# Optional: override the SQLite catalog location.
# Can also be set via REFRESHER_DB_PATH or --db-path.
# db_path: ~/.config/refresher/refresher.db

# Command run once per connection refresh. Receives REFRESHER_WORKBOOK and
# REFRESHER_CONNECTION in its environment. Empty means "stamp only".
# refresh_command: ""
# refresh_timeout: 2m

# Retry policy for each connection refresh.
# max_attempts: 3
# backoff: 5s
# backoff_strategy: constant   # or exponential
# backoff_max: 1m

# Names ending in one of these suffixes are removed by cleanup.
# duplicate_suffixes: [" (2)", "_copy"]

# log_level: info
`
