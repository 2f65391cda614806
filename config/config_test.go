package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Output.Format != "ctags" {
		t.Errorf("expected default format ctags, got %s", cfg.Output.Format)
	}
	if cfg.Index.Debounce != 100*time.Millisecond {
		t.Errorf("expected default debounce 100ms, got %s", cfg.Index.Debounce)
	}
	if !cfg.Index.ReferencesEnabled() {
		t.Error("expected references enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "no paths",
			modify:  func(c *Config) { c.Index.Paths = nil },
			wantErr: true,
		},
		{
			name:    "empty org",
			modify:  func(c *Config) { c.Index.Org = "" },
			wantErr: true,
		},
		{
			name:    "empty project",
			modify:  func(c *Config) { c.Index.Project = "" },
			wantErr: true,
		},
		{
			name:    "negative workers",
			modify:  func(c *Config) { c.Index.Workers = -1 },
			wantErr: true,
		},
		{
			name:    "unknown format",
			modify:  func(c *Config) { c.Output.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "table format",
			modify:  func(c *Config) { c.Output.Format = "table" },
			wantErr: false,
		},
		{
			name:    "log level is case insensitive",
			modify:  func(c *Config) { c.Log.Level = "DEBUG" },
			wantErr: false,
		},
		{
			name:    "incremental without store",
			modify:  func(c *Config) { c.Index.Incremental = true },
			wantErr: true,
		},
		{
			name: "incremental with store",
			modify: func(c *Config) {
				c.Index.Incremental = true
				c.Store.Path = "units.db"
			},
			wantErr: false,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Index.Paths = []string{"/etc/systemd/system"}
	cfg.Index.Debounce = 250 * time.Millisecond
	off := false
	cfg.Index.References = &off

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if len(loaded.Index.Paths) != 1 || loaded.Index.Paths[0] != "/etc/systemd/system" {
		t.Errorf("expected paths [/etc/systemd/system], got %v", loaded.Index.Paths)
	}
	if loaded.Index.Debounce != 250*time.Millisecond {
		t.Errorf("expected debounce 250ms, got %s", loaded.Index.Debounce)
	}
	if loaded.Index.ReferencesEnabled() {
		t.Error("expected references disabled after round trip")
	}
}

func TestLoadFromFileDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "semunit.yaml")
	content := "index:\n  debounce: 2s\n  references: false\noutput:\n  format: json\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Index.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %s", cfg.Index.Debounce)
	}
	if cfg.Index.References == nil || *cfg.Index.References {
		t.Error("expected references explicitly false")
	}
	if cfg.Output.Format != "json" {
		t.Errorf("expected format json, got %s", cfg.Output.Format)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	off := false
	override := &Config{
		Index: IndexConfig{
			Project:    "fleet",
			References: &off,
		},
		Output: OutputConfig{
			Format: "table",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
	}

	base.Merge(override)

	if base.Index.Project != "fleet" {
		t.Errorf("expected project fleet, got %s", base.Index.Project)
	}
	if base.Index.Org != "local" {
		t.Errorf("expected org to be preserved, got %s", base.Index.Org)
	}
	if base.Index.ReferencesEnabled() {
		t.Error("expected references disabled after merge")
	}
	if base.Output.Format != "table" {
		t.Errorf("expected format table, got %s", base.Output.Format)
	}
	if base.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected NATS URL to be merged, got %s", base.NATS.URL)
	}
	if len(base.Index.Excludes) != 2 {
		t.Errorf("expected excludes to be preserved, got %v", base.Index.Excludes)
	}

	// References left unset must not re-enable
	base.Merge(&Config{})
	if base.Index.ReferencesEnabled() {
		t.Error("empty merge should not change references")
	}
}

func TestLoaderLayering(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	nested := filepath.Join(project, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	user := DefaultConfig()
	user.Index.Org = "acme"
	user.Output.Format = "json"
	if err := user.SaveToFile(filepath.Join(home, UserConfigDir, UserConfigFile)); err != nil {
		t.Fatal(err)
	}

	projectYAML := "output:\n  format: table\nindex:\n  project: edge\n"
	if err := os.WriteFile(filepath.Join(project, ProjectConfigFile), []byte(projectYAML), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(nil)
	loader.Home = home
	loader.Dir = nested

	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Index.Org != "acme" {
		t.Errorf("expected org from user config, got %s", cfg.Index.Org)
	}
	if cfg.Index.Project != "edge" {
		t.Errorf("expected project from project config, got %s", cfg.Index.Project)
	}
	if cfg.Output.Format != "table" {
		t.Errorf("project config should override user config, got %s", cfg.Output.Format)
	}
	if cfg.Index.Root == "" {
		t.Error("expected root to default to working directory")
	}

	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	if err := os.WriteFile(explicit, []byte("output:\n  format: ntriples\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loader.Load(explicit)
	if err != nil {
		t.Fatalf("Load(explicit) error = %v", err)
	}
	if cfg.Output.Format != "ntriples" {
		t.Errorf("explicit config should win, got %s", cfg.Output.Format)
	}

	if _, err := loader.Load(filepath.Join(home, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	loader := NewLoader(nil)
	loader.Home = t.TempDir()

	if err := loader.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	path := filepath.Join(loader.Home, UserConfigDir, UserConfigFile)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected user config at %s: %v", path, err)
	}
	// Second call leaves the file alone
	if err := loader.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() second call error = %v", err)
	}
}

func TestConfigValidateFormatListsChoices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	for _, want := range []string{"output.format", "ctags", "ntriples", "table"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}
