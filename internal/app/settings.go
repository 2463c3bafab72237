package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath            string   `yaml:"db_path"`
	LogLevel          string   `yaml:"log_level"`
	RefreshCommand    string   `yaml:"refresh_command"`
	RefreshTimeout    string   `yaml:"refresh_timeout"`
	MaxAttempts       int      `yaml:"max_attempts"`
	Backoff           string   `yaml:"backoff"`
	BackoffMax        string   `yaml:"backoff_max"`
	BackoffStrategy   string   `yaml:"backoff_strategy"`
	DuplicateSuffixes []string `yaml:"duplicate_suffixes"`
}

const (
	StrategyConstant    = "constant"
	StrategyExponential = "exponential"
)

// RetrySettings are the effective retry values used for each connection refresh.
type RetrySettings struct {
	MaxAttempts    int           `json:"max_attempts"`
	Backoff        time.Duration `json:"backoff"`
	BackoffMax     time.Duration `json:"backoff_max"`
	Strategy       string        `json:"strategy"`
	RefreshCommand string        `json:"refresh_command,omitempty"`
	RefreshTimeout time.Duration `json:"refresh_timeout"`
}

const (
	defaultMaxAttempts    = 3
	defaultBackoff        = 5 * time.Second
	defaultBackoffMax     = time.Minute
	defaultRefreshTimeout = 2 * time.Minute

	maxMaxAttempts = 100
	maxBackoff     = time.Hour
)

// EffectiveRetrySettings returns validated retry settings with defaults.
// Invalid or missing config values fall back to defaults; large values are clamped.
func EffectiveRetrySettings() RetrySettings {
	cfg := RetrySettings{
		MaxAttempts:    defaultMaxAttempts,
		Backoff:        defaultBackoff,
		BackoffMax:     defaultBackoffMax,
		Strategy:       StrategyConstant,
		RefreshTimeout: defaultRefreshTimeout,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.MaxAttempts > 0 {
		cfg.MaxAttempts = s.MaxAttempts
	}
	if d, ok := parsePositiveDuration(s.Backoff); ok {
		cfg.Backoff = d
	}
	if d, ok := parsePositiveDuration(s.BackoffMax); ok {
		cfg.BackoffMax = d
	}
	if d, ok := parsePositiveDuration(s.RefreshTimeout); ok {
		cfg.RefreshTimeout = d
	}
	if strings.EqualFold(strings.TrimSpace(s.BackoffStrategy), StrategyExponential) {
		cfg.Strategy = StrategyExponential
	}
	cfg.RefreshCommand = strings.TrimSpace(s.RefreshCommand)

	if cfg.MaxAttempts > maxMaxAttempts {
		cfg.MaxAttempts = maxMaxAttempts
	}
	if cfg.Backoff > maxBackoff {
		cfg.Backoff = maxBackoff
	}
	if cfg.BackoffMax > maxBackoff {
		cfg.BackoffMax = maxBackoff
	}
	if cfg.BackoffMax < cfg.Backoff {
		cfg.BackoffMax = cfg.Backoff
	}
	return cfg
}

// EffectiveLogLevel returns REFRESHER_LOG_LEVEL, then settings log_level, then "info".
func EffectiveLogLevel() string {
	if v := strings.TrimSpace(os.Getenv("REFRESHER_LOG_LEVEL")); v != "" {
		return strings.ToLower(v)
	}
	if s, err := LoadSettings(); err == nil && s.LogLevel != "" {
		return strings.ToLower(strings.TrimSpace(s.LogLevel))
	}
	return "info"
}

// DuplicateSuffixes returns the configured cleanup suffixes, skipping blanks.
func DuplicateSuffixes() []string {
	s, err := LoadSettings()
	if err != nil {
		return nil
	}
	var out []string
	for _, suffix := range s.DuplicateSuffixes {
		if suffix != "" {
			out = append(out, suffix)
		}
	}
	return out
}

func parsePositiveDuration(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride hold the process-wide --db-path override.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (--db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// settingsPaths lists config files in lookup order.
func settingsPaths() []string {
	var paths []string
	if dir, err := ConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "config.yaml"))
	}
	return append(paths,
		filepath.Join(string(os.PathSeparator), "etc", "refresher", "config.yaml"),
		"config.yaml",
	)
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/refresher/config.yaml
// 2) /etc/refresher/config.yaml
// 3) ./config.yaml
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}
		if _, err := ConfigDir(); err != nil {
			settingsErr = err
			return
		}
		for _, p := range settingsPaths() {
			s, err := loadSettingsFile(p)
			if err == nil {
				settings = s
				return
			}
			if !errors.Is(err, os.ErrNotExist) {
				settingsErr = err
				return
			}
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: fixed lookup paths
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
