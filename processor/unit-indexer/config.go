package unitindexer

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds configuration for the unit indexer
type Config struct {
	// Root is the base directory tag paths are made relative to
	Root string `json:"root" yaml:"root"`

	// Paths are files, directories, or glob patterns to index
	Paths []string `json:"paths" yaml:"paths"`

	// Excludes are directory base names skipped while walking
	Excludes []string `json:"excludes" yaml:"excludes"`

	// Org and Project qualify graph entity IDs
	Org     string `json:"org" yaml:"org"`
	Project string `json:"project" yaml:"project"`

	// References enables reference tags. With it off, files are still
	// scanned and published, just without tags.
	References bool `json:"references" yaml:"references"`

	// Workers bounds concurrent file scans (0 = number of CPUs)
	Workers int `json:"workers" yaml:"workers"`

	// DebounceDelay is the watcher debounce (e.g. 200ms)
	DebounceDelay string `json:"debounce_delay" yaml:"debounce_delay"`
}

// DefaultConfig returns default configuration for the unit indexer
func DefaultConfig() Config {
	return Config{
		Root:          ".",
		Paths:         []string{"."},
		Excludes:      []string{"vendor", "node_modules"},
		Org:           "local",
		Project:       "units",
		References:    true,
		DebounceDelay: "100ms",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if len(c.Paths) == 0 {
		return fmt.Errorf("at least one path is required")
	}

	if c.Org == "" {
		return fmt.Errorf("org is required")
	}

	if c.Project == "" {
		return fmt.Errorf("project is required")
	}

	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}

	if c.DebounceDelay != "" {
		d, err := time.ParseDuration(c.DebounceDelay)
		if err != nil {
			return fmt.Errorf("invalid debounce_delay format: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("debounce_delay must be positive")
		}
	}

	return nil
}

// workerCount returns the effective scan concurrency
func (c *Config) workerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// debounce returns the parsed debounce delay (0 lets the watcher choose)
func (c *Config) debounce() time.Duration {
	d, _ := time.ParseDuration(c.DebounceDelay)
	return d
}
