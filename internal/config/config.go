// Package config loads process configuration from the environment.
package config

import (
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config is the daemon's process configuration, read from WEBMON_*
// environment variables. User-facing settings (delays, escalation) live in
// the synchronized store instead, so they follow the user across devices.
type Config struct {
	DataDir string `envconfig:"DATA_DIR"`
	Listen  string `envconfig:"LISTEN" default:"127.0.0.1:8347"`
	LogPath string `envconfig:"LOG_PATH"`
}

// Load reads configuration with defaults derived from the home directory.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("webmon", &cfg); err != nil {
		return cfg, err
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.DataDir = filepath.Join(home, ".webmon")
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(cfg.DataDir, "webmon.log")
	}
	return cfg, nil
}

// BaseURL returns the daemon's HTTP base URL for clients.
func (c Config) BaseURL() string {
	return "http://" + c.Listen
}
