package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Config represents the application configuration
type Config struct {
	Feed      FeedConfig      `json:"feed"`
	Replay    ReplayConfig    `json:"replay"`
	Archive   ArchiveConfig   `json:"archive"`
	Relay     RelayConfig     `json:"relay"`
	Interface InterfaceConfig `json:"interface"`
}

// FeedConfig contains live feed client settings
type FeedConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RetryAttempts  int    `json:"retry_attempts"`
	RetryDelayMs   int    `json:"retry_delay_ms"`
	Concurrency    int    `json:"concurrency"`
}

// ReplayConfig contains replay and export settings
type ReplayConfig struct {
	DelayMinutes int  `json:"delay_minutes"`
	PlyCount     bool `json:"ply_count"`
	Lenient      bool `json:"lenient"`
}

// ArchiveConfig contains snapshot archive settings. An empty path disables
// the archive.
type ArchiveConfig struct {
	DBPath string `json:"db_path"`
}

// RelayConfig contains NATS settings. An empty URL disables the relay.
type RelayConfig struct {
	NatsURL       string `json:"nats_url"`
	SubjectPrefix string `json:"subject_prefix"`
}

// InterfaceConfig contains logging settings
type InterfaceConfig struct {
	LogLevel    string `json:"log_level"`
	LogPath     string `json:"log_path"`
	Development bool   `json:"development"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			BaseURL:        "https://1.pool.livechesscloud.com/get",
			TimeoutSeconds: 10,
			RetryAttempts:  3,
			RetryDelayMs:   200,
			Concurrency:    8,
		},
		Replay: ReplayConfig{
			DelayMinutes: 0,
			PlyCount:     true,
			Lenient:      true,
		},
		Archive: ArchiveConfig{
			DBPath: "data/archive.db",
		},
		Relay: RelayConfig{
			SubjectPrefix: "pgnrelay",
		},
		Interface: InterfaceConfig{
			LogLevel: "info",
		},
	}
}

// Validate checks the configuration for values the commands cannot use
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Feed.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("feed.base_url %q is not an absolute URL", c.Feed.BaseURL))
	}
	if c.Feed.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("feed.timeout_seconds must be positive, got %d", c.Feed.TimeoutSeconds))
	}
	if c.Feed.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("feed.retry_attempts must be positive, got %d", c.Feed.RetryAttempts))
	}
	if c.Feed.RetryDelayMs < 0 {
		errs = append(errs, fmt.Errorf("feed.retry_delay_ms must not be negative, got %d", c.Feed.RetryDelayMs))
	}
	if c.Feed.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("feed.concurrency must be positive, got %d", c.Feed.Concurrency))
	}
	if c.Replay.DelayMinutes < 0 {
		errs = append(errs, fmt.Errorf("replay.delay_minutes must not be negative, got %d", c.Replay.DelayMinutes))
	}
	if c.Relay.NatsURL != "" && strings.TrimSpace(c.Relay.SubjectPrefix) == "" {
		errs = append(errs, errors.New("relay.subject_prefix is required when relay.nats_url is set"))
	}
	switch c.Interface.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("interface.log_level %q is not one of debug, info, warn, error", c.Interface.LogLevel))
	}

	return errors.Join(errs...)
}

// Load reads and parses the configuration file. Missing fields keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads the file at path, or returns the defaults if it
// cannot be read
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDirectories creates the parent directories of the configured files
func (c *Config) EnsureDirectories() error {
	for _, path := range []string{c.Archive.DBPath, c.Interface.LogPath} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	return nil
}
