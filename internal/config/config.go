// Package config handles configuration loading and defaults.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Clipboard backends.
const (
	BackendAuto   = "auto"   // native if it initializes, else exec
	BackendNative = "native" // golang.design/x/clipboard
	BackendExec   = "exec"   // wl-paste / xclip / pbpaste
	BackendMemory = "memory" // in-process only, for headless machines
)

const (
	minPollIntervalMS = 50
	maxPollIntervalMS = 5000
)

// Config holds all configuration for the daemon.
type Config struct {
	MaxHistoryRecords int    `yaml:"max_history_records"`
	StoragePath       string `yaml:"storage_path"`
	SocketPath        string `yaml:"socket_path"`

	ClipboardBackend  string  `yaml:"clipboard_backend"`
	PollIntervalMS    int     `yaml:"poll_interval_ms"` // Fallback polling when the backend has no change notification
	MaxReadsPerSecond float64 `yaml:"max_reads_per_second"`
	MaxTextBytes      int     `yaml:"max_text_bytes"` // 0 = unlimited

	// Privacy settings
	IgnoreKeywords []string `yaml:"ignore_keywords"`

	DesktopNotifications bool `yaml:"desktop_notifications"` // Warn via notify-send when history can't be saved
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}

	return &Config{
		MaxHistoryRecords: 100,
		StoragePath:       filepath.Join(home, ".local", "share", "ropy"),

		ClipboardBackend:  BackendAuto,
		PollIntervalMS:    500,
		MaxReadsPerSecond: 20,
		MaxTextBytes:      10 << 20,

		IgnoreKeywords: []string{},

		DesktopNotifications: true,
	}
}

// Load loads configuration from the default paths, falling back to defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		cfg.validate()
		return cfg, nil
	}

	configPaths := []string{
		filepath.Join(home, ".config", "ropy", "config.yaml"),
		filepath.Join(home, ".local", "share", "ropy", "config.yaml"),
	}

	for _, path := range configPaths {
		err := loadFromFile(cfg, path)
		if err == nil {
			break
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	cfg.validate()
	return cfg, nil
}

// LoadFile loads configuration from path on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	cfg.validate()
	return cfg, nil
}

// loadFromFile reads a YAML config file and merges it into cfg.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	// Expand ~ in paths
	cfg.StoragePath = expandTilde(cfg.StoragePath)
	cfg.SocketPath = expandTilde(cfg.SocketPath)
	return nil
}

// validate replaces out-of-range values with defaults.
func (c *Config) validate() {
	def := DefaultConfig()

	if c.MaxHistoryRecords <= 0 {
		log.Printf("[config] max_history_records %d is invalid, using %d", c.MaxHistoryRecords, def.MaxHistoryRecords)
		c.MaxHistoryRecords = def.MaxHistoryRecords
	}
	if c.StoragePath == "" {
		c.StoragePath = def.StoragePath
	}
	if c.SocketPath == "" {
		c.SocketPath = filepath.Join(c.StoragePath, "ropy.sock")
	}

	switch c.ClipboardBackend {
	case BackendAuto, BackendNative, BackendExec, BackendMemory:
	case "":
		c.ClipboardBackend = BackendAuto
	default:
		log.Printf("[config] Unknown clipboard_backend %q, using %s", c.ClipboardBackend, BackendAuto)
		c.ClipboardBackend = BackendAuto
	}

	c.PollIntervalMS = min(max(c.PollIntervalMS, minPollIntervalMS), maxPollIntervalMS)

	if c.MaxReadsPerSecond < 0 {
		c.MaxReadsPerSecond = def.MaxReadsPerSecond
	}
	if c.MaxTextBytes < 0 {
		c.MaxTextBytes = def.MaxTextBytes
	}
}

// PollInterval returns the fallback polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// EnsureStorageDir creates the storage directory if it doesn't exist.
func (c *Config) EnsureStorageDir() error {
	return os.MkdirAll(c.StoragePath, 0700) // More restrictive permissions
}
