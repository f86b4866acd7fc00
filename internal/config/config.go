// Package config handles XDG configuration directories, credential file
// paths, and the YAML settings file with the sync tunables.
package config

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the application directory name.
	AppName = "slidetasks"

	// OAuthClientFile is the OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored OAuth token filename.
	TokenFile = "token.json"

	// SettingsFile is the YAML settings filename.
	SettingsFile = "settings.yaml"

	// CacheDBFile is the local cache database filename.
	CacheDBFile = "slidetasks.db"
)

// Config holds configuration paths and the loaded settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// DataDir is where the cache database and logs live.
	DataDir string

	// Settings holds the sync tunables loaded from settings.yaml.
	Settings Settings

	// Quiet suppresses informational output.
	Quiet bool
}

// New creates a Config rooted at configDir (or the XDG default when empty)
// and loads settings.yaml if present. Missing settings fall back to defaults.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{
		Dir:     dir,
		DataDir: defaultDataDir(dir),
	}

	settings, err := LoadSettings(filepath.Join(dir, SettingsFile))
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// defaultDataDir returns the data directory.
// Uses XDG_DATA_HOME if set, otherwise $HOME/.local/share; falls back to the
// config dir when no home is available.
func defaultDataDir(configDir string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return configDir
	}
	return filepath.Join(home, ".local", "share", AppName)
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// CacheDBPath returns the path to the local cache database.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.DataDir, CacheDBFile)
}

// EnsureDirs creates the config and data directories if they don't exist.
// The config directory holds credentials, so it is created with mode 0700.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.Dir, 0700); err != nil {
		return err
	}
	return os.MkdirAll(c.DataDir, 0755)
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}
