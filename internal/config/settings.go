package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the sync tunables. The backoff schedule, retry cap, and
// poll interval are deliberately configuration rather than constants.
type Settings struct {
	// PollIntervalSeconds is how often a sync cycle runs. Default 45.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// UndoWindowMillis is the grace period after a completion toggle
	// during which it can be reverted. Default 2000.
	UndoWindowMillis int `yaml:"undo_window_ms"`

	// BackoffBaseSeconds is the first retry delay for transient push
	// failures. Default 2.
	BackoffBaseSeconds int `yaml:"backoff_base_seconds"`

	// BackoffCapSeconds caps the exponential retry delay. Default 300.
	BackoffCapSeconds int `yaml:"backoff_cap_seconds"`

	// MaxRetries is how many transient failures a mutation survives
	// before it is escalated to a sync conflict. Default 8.
	MaxRetries int `yaml:"max_retries"`

	// CompletedLookbackHours is how far back completed tasks are included
	// in a snapshot. Default 24.
	CompletedLookbackHours int `yaml:"completed_lookback_hours"`

	// LogLevel is one of debug, info, warn, error. Default info.
	LogLevel string `yaml:"log_level"`
}

// DefaultSettings returns the recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		PollIntervalSeconds:    45,
		UndoWindowMillis:       2000,
		BackoffBaseSeconds:     2,
		BackoffCapSeconds:      300,
		MaxRetries:             8,
		CompletedLookbackHours: 24,
		LogLevel:               "info",
	}
}

// LoadSettings reads a YAML settings file. A missing file yields defaults;
// present fields override them, zero-valued fields keep the default.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}

	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}

	if loaded.PollIntervalSeconds > 0 {
		s.PollIntervalSeconds = loaded.PollIntervalSeconds
	}
	if loaded.UndoWindowMillis > 0 {
		s.UndoWindowMillis = loaded.UndoWindowMillis
	}
	if loaded.BackoffBaseSeconds > 0 {
		s.BackoffBaseSeconds = loaded.BackoffBaseSeconds
	}
	if loaded.BackoffCapSeconds > 0 {
		s.BackoffCapSeconds = loaded.BackoffCapSeconds
	}
	if loaded.MaxRetries > 0 {
		s.MaxRetries = loaded.MaxRetries
	}
	if loaded.CompletedLookbackHours > 0 {
		s.CompletedLookbackHours = loaded.CompletedLookbackHours
	}
	if loaded.LogLevel != "" {
		s.LogLevel = loaded.LogLevel
	}
	return s, nil
}

// PollInterval returns the poll interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// UndoWindow returns the undo window as a duration.
func (s Settings) UndoWindow() time.Duration {
	return time.Duration(s.UndoWindowMillis) * time.Millisecond
}

// BackoffBase returns the base retry delay as a duration.
func (s Settings) BackoffBase() time.Duration {
	return time.Duration(s.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the retry delay cap as a duration.
func (s Settings) BackoffCap() time.Duration {
	return time.Duration(s.BackoffCapSeconds) * time.Second
}

// CompletedLookback returns the completed-task lookback as a duration.
func (s Settings) CompletedLookback() time.Duration {
	return time.Duration(s.CompletedLookbackHours) * time.Hour
}
