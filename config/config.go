// Package config provides configuration loading and management for semunit.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	ssconfig "github.com/c360studio/semstreams/config"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semunit/export"
)

// Config represents the complete semunit configuration
type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Output  OutputConfig  `yaml:"output"`
	Store   StoreConfig   `yaml:"store"`
	NATS    NATSConfig    `yaml:"nats"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// IndexConfig configures what gets indexed
type IndexConfig struct {
	// Root is the directory tag paths are relative to (default: working directory)
	Root string `yaml:"root"`
	// Paths are files, directories, or globs to index
	Paths []string `yaml:"paths"`
	// Excludes are directory names skipped while walking
	Excludes []string `yaml:"excludes"`
	// Org and Project qualify graph entity IDs
	Org     string `yaml:"org"`
	Project string `yaml:"project"`
	// References enables reference tags (default: true)
	References *bool `yaml:"references"`
	// Workers bounds concurrent scans (0 = number of CPUs)
	Workers int `yaml:"workers"`
	// Debounce is the watch mode debounce delay
	Debounce time.Duration `yaml:"debounce"`
	// Incremental skips files whose hash matches the store (requires store.path)
	Incremental bool `yaml:"incremental"`
}

// ReferencesEnabled reports the effective reference toggle.
func (c IndexConfig) ReferencesEnabled() bool {
	return c.References == nil || *c.References
}

// OutputConfig configures printed output
type OutputConfig struct {
	// Format is one of ctags, json, ntriples, table
	Format string `yaml:"format"`
	// File is the output path (empty = stdout)
	File string `yaml:"file"`
}

// StoreConfig configures the SQLite reference store
type StoreConfig struct {
	// Path is the database file (empty = no store)
	Path string `yaml:"path"`
}

// NATSConfig configures graph publication
type NATSConfig struct {
	// URL is the NATS server URL (empty = do not publish)
	URL string `yaml:"url"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is debug, info, warn, or error
	Level string `yaml:"level"`
	// File routes logs to a rotating file instead of stderr
	File string `yaml:"file"`
	// MaxSizeMB and MaxBackups control rotation of File
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics in watch mode (empty = disabled)
	Addr string `yaml:"addr"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Paths:    []string{"."},
			Excludes: []string{"vendor", "node_modules"},
			Org:      "local",
			Project:  "units",
			Debounce: 100 * time.Millisecond,
		},
		Output: OutputConfig{
			Format: "ctags",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if len(c.Index.Paths) == 0 {
		return fmt.Errorf("index.paths is required")
	}
	if c.Index.Org == "" {
		return fmt.Errorf("index.org is required")
	}
	if c.Index.Project == "" {
		return fmt.Errorf("index.project is required")
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("index.workers must not be negative")
	}
	if c.Index.Debounce < 0 {
		return fmt.Errorf("index.debounce must not be negative")
	}
	if c.Index.Incremental && c.Store.Path == "" {
		return fmt.Errorf("index.incremental requires store.path")
	}
	if _, err := export.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level must be one of %s", strings.Join(logLevels, ", "))
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, expanding
// environment variables first
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal([]byte(ssconfig.ExpandEnvWithDefaults(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Index
	if other.Index.Root != "" {
		c.Index.Root = other.Index.Root
	}
	if len(other.Index.Paths) > 0 {
		c.Index.Paths = other.Index.Paths
	}
	if len(other.Index.Excludes) > 0 {
		c.Index.Excludes = other.Index.Excludes
	}
	if other.Index.Org != "" {
		c.Index.Org = other.Index.Org
	}
	if other.Index.Project != "" {
		c.Index.Project = other.Index.Project
	}
	if other.Index.References != nil {
		v := *other.Index.References
		c.Index.References = &v
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.Debounce != 0 {
		c.Index.Debounce = other.Index.Debounce
	}
	if other.Index.Incremental {
		c.Index.Incremental = true
	}

	// Output
	if other.Output.Format != "" {
		c.Output.Format = other.Output.Format
	}
	if other.Output.File != "" {
		c.Output.File = other.Output.File
	}

	// Store, NATS, Metrics
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxBackups != 0 {
		c.Log.MaxBackups = other.Log.MaxBackups
	}
}
