/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the ipfdb configuration
type Config struct {
	DataDir string  `yaml:"data_dir"`
	Port    int     `yaml:"port"`
	Bind    string  `yaml:"bind"`
	APIKey  string  `yaml:"api_key,omitempty"` // empty disables authentication
	Logging Logging `yaml:"logging"`
	Codec   Codec   `yaml:"codec"`
	Compose Compose `yaml:"compose"`
	Source  Source  `yaml:"source"`
}

// Logging contains logging configuration
type Logging struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"`  // console or json
	Outputs     []string `yaml:"outputs"` // stdout, stderr or file paths
	Rotation    Rotation `yaml:"rotation"`
	Development bool     `yaml:"development"`
}

// Rotation controls log file rotation for file outputs
type Rotation struct {
	Enable     bool   `yaml:"enable"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Codec contains value codec settings
type Codec struct {
	Caching bool `yaml:"caching"`
}

// Compose contains defaults for writing profile files
type Compose struct {
	SkipRemoved bool `yaml:"skip_removed"`
	Sort        bool `yaml:"sort"`
}

// Source describes where the served catalog is refreshed from
type Source struct {
	URL      string        `yaml:"url"`      // path, file:// or http(s) URL
	Schedule string        `yaml:"schedule"` // cron expression, empty disables polling
	Watch    bool          `yaml:"watch"`    // re-import local files when they change
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    8080,
		Bind:    "127.0.0.1",
		Logging: Logging{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: Rotation{
				Filename:   "logs/ipfdb.log",
				MaxSizeMB:  50,
				MaxBackups: 5,
				MaxAgeDays: 14,
			},
		},
		Codec: Codec{
			Caching: true,
		},
		Source: Source{
			Timeout: 5 * time.Minute,
		},
	}
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.Source.Schedule != "" {
		if c.Source.URL == "" {
			return fmt.Errorf("source schedule set without source url")
		}
		if _, err := cron.ParseStandard(c.Source.Schedule); err != nil {
			return fmt.Errorf("invalid source schedule %q: %w", c.Source.Schedule, err)
		}
	}
	if c.Source.Timeout < 0 {
		return fmt.Errorf("invalid source timeout %s", c.Source.Timeout)
	}

	return nil
}

// LoadConfig loads configuration from the specified path. Values missing from
// the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// BootstrapConfig writes a default configuration, optionally pointing at a
// data directory and a catalog source
func BootstrapConfig(configPath, dataDir, sourceURL string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}
	if sourceURL != "" {
		config.Source.URL = sourceURL
	}

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./ipfdb.yaml"
	}

	// For Linux/macOS, use ~/.config/ipfdb/config.yaml
	configDir := filepath.Join(homeDir, ".config", "ipfdb")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
