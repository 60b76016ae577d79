// Package config loads daemon configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings of the sync daemon.
type Config struct {
	DatabasePath  string
	RemoteBaseURL string
	RemoteToken   string
	RemoteTimeout time.Duration
	SyncSchedule  string
	CacheSize     int
}

// UnmarshalYAML folds file values over the current contents: fields the
// file omits keep their defaults. Durations are written in Go syntax
// ("15s", "2m").
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DatabasePath  string `yaml:"database_path"`
		RemoteBaseURL string `yaml:"remote_base_url"`
		RemoteToken   string `yaml:"remote_token"`
		RemoteTimeout string `yaml:"remote_timeout"`
		SyncSchedule  string `yaml:"sync_schedule"`
		CacheSize     int    `yaml:"cache_size"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.DatabasePath != "" {
		c.DatabasePath = raw.DatabasePath
	}
	if raw.RemoteBaseURL != "" {
		c.RemoteBaseURL = raw.RemoteBaseURL
	}
	if raw.RemoteToken != "" {
		c.RemoteToken = raw.RemoteToken
	}
	if raw.RemoteTimeout != "" {
		d, err := time.ParseDuration(raw.RemoteTimeout)
		if err != nil {
			return fmt.Errorf("remote_timeout: %w", err)
		}
		c.RemoteTimeout = d
	}
	if raw.SyncSchedule != "" {
		c.SyncSchedule = raw.SyncSchedule
	}
	if raw.CacheSize != 0 {
		c.CacheSize = raw.CacheSize
	}
	return nil
}

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		DatabasePath:  "localcal.db",
		RemoteTimeout: 15 * time.Second,
		SyncSchedule:  "@every 1m",
		CacheSize:     128,
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults plus environment only.
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	var invalid []string
	if cfg.RemoteBaseURL == "" {
		invalid = append(invalid, "remote_base_url (LOCALCAL_REMOTE_URL)")
	}
	if cfg.RemoteTimeout <= 0 {
		invalid = append(invalid, "remote_timeout")
	}
	if cfg.CacheSize <= 0 {
		invalid = append(invalid, "cache_size")
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("missing or invalid configuration: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LOCALCAL_DB_PATH")); v != "" {
		cfg.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCALCAL_REMOTE_URL")); v != "" {
		cfg.RemoteBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCALCAL_REMOTE_TOKEN")); v != "" {
		cfg.RemoteToken = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCALCAL_REMOTE_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RemoteTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOCALCAL_SYNC_SCHEDULE")); v != "" {
		cfg.SyncSchedule = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCALCAL_CACHE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheSize = n
		}
	}
}
