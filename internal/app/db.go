package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const dbFileName = "refresher.db"

// GetDBPath resolves the catalog database path.
// Order of precedence:
// 1) CLI override (--db-path)
// 2) Environment variable: REFRESHER_DB_PATH
// 3) config.yaml: db_path
// 4) Default: ~/.config/refresher/refresher.db
// The parent directory is created if missing.
func GetDBPath() (string, error) {
	path, _, err := ResolveDBPathDetailed()
	return path, err
}

// ResolveDBPathDetailed returns the resolved DB path along with the source of that decision.
func ResolveDBPathDetailed() (path string, source string, err error) {
	if override := getDBPathOverride(); override != "" {
		resolvedPath, ensureErr := EnsureDBDir(override)
		return resolvedPath, "cli(--db-path)", ensureErr
	}

	if envPath := os.Getenv("REFRESHER_DB_PATH"); envPath != "" {
		resolvedPath, ensureErr := EnsureDBDir(envPath)
		return resolvedPath, "env(REFRESHER_DB_PATH)", ensureErr
	}

	for _, p := range settingsPaths() {
		s, loadErr := loadSettingsFile(p)
		if loadErr == nil {
			if s.DBPath != "" {
				resolvedPath, ensureErr := EnsureDBDir(s.DBPath)
				return resolvedPath, fmt.Sprintf("config(%s)", p), ensureErr
			}
			// The first config file found wins, even without db_path.
			break
		}
		if errors.Is(loadErr, os.ErrNotExist) {
			continue
		}
		return "", "", fmt.Errorf("failed to load config %s: %w", p, loadErr)
	}

	configDir, err := ConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	resolved, err := EnsureDBDir(filepath.Join(configDir, dbFileName))
	return resolved, "default(~/.config/refresher/refresher.db)", err
}

// EnsureDBDir creates dbPath's parent directory.
func EnsureDBDir(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}
