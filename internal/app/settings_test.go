package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeUserConfig(t *testing.T, home, content string) {
	t.Helper()
	userConfigPath := filepath.Join(home, ".config", "refresher", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte(content), 0o600))
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return workdir
}

func TestLoadSettings_PrefersUserConfigOverLocal(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	workdir := chdirTemp(t)

	writeUserConfig(t, home, "db_path: /tmp/from-user.db\n")
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("db_path: /tmp/from-local.db\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-user.db", s.DBPath)
}

func TestLoadSettings_FallsBackToLocalConfig(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	workdir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("db_path: /tmp/from-local.db\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-local.db", s.DBPath)
}

func TestLoadSettings_InvalidYAMLReturnsError(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	writeUserConfig(t, home, "db_path: [")

	_, err := LoadSettings()
	require.Error(t, err)
}

func TestLoadSettingsFile_ReadsRetryFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.Join([]string{
		"refresh_command: ./refresh.sh",
		"refresh_timeout: 30s",
		"max_attempts: 5",
		"backoff: 2s",
		"backoff_max: 20s",
		"backoff_strategy: exponential",
		`duplicate_suffixes: [" (2)", "_copy"]`,
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := loadSettingsFile(path)
	require.NoError(t, err)
	require.Equal(t, "./refresh.sh", s.RefreshCommand)
	require.Equal(t, "30s", s.RefreshTimeout)
	require.Equal(t, 5, s.MaxAttempts)
	require.Equal(t, "2s", s.Backoff)
	require.Equal(t, "20s", s.BackoffMax)
	require.Equal(t, "exponential", s.BackoffStrategy)
	require.Equal(t, []string{" (2)", "_copy"}, s.DuplicateSuffixes)
}

func TestEffectiveRetrySettings_DefaultsAndClamp(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	cfg := EffectiveRetrySettings()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 5*time.Second, cfg.Backoff)
	require.Equal(t, time.Minute, cfg.BackoffMax)
	require.Equal(t, StrategyConstant, cfg.Strategy)
	require.Equal(t, 2*time.Minute, cfg.RefreshTimeout)
	require.Empty(t, cfg.RefreshCommand)

	writeUserConfig(t, home, strings.Join([]string{
		"max_attempts: 99999",
		"backoff: 3h",
		"backoff_max: 1s",
		"backoff_strategy: Exponential",
		"refresh_timeout: nonsense",
		"",
	}, "\n"))

	resetSettingsStateForTest()
	cfg = EffectiveRetrySettings()
	require.Equal(t, 100, cfg.MaxAttempts)
	require.Equal(t, time.Hour, cfg.Backoff)
	require.Equal(t, time.Hour, cfg.BackoffMax)
	require.Equal(t, StrategyExponential, cfg.Strategy)
	require.Equal(t, 2*time.Minute, cfg.RefreshTimeout)
}

func TestEffectiveRetrySettings_IgnoresNonPositiveValues(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)
	writeUserConfig(t, home, "max_attempts: -1\nbackoff: 0s\nbackoff_max: -5s\n")

	cfg := EffectiveRetrySettings()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 5*time.Second, cfg.Backoff)
	require.Equal(t, time.Minute, cfg.BackoffMax)
}

func TestEffectiveLogLevel_EnvBeatsConfig(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)
	writeUserConfig(t, home, "log_level: warn\n")

	t.Setenv("REFRESHER_LOG_LEVEL", "")
	require.Equal(t, "warn", EffectiveLogLevel())

	t.Setenv("REFRESHER_LOG_LEVEL", "DEBUG")
	require.Equal(t, "debug", EffectiveLogLevel())
}

func TestDuplicateSuffixes_SkipsBlanks(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)
	writeUserConfig(t, home, `duplicate_suffixes: ["", "_copy"]`+"\n")

	require.Equal(t, []string{"_copy"}, DuplicateSuffixes())
}
