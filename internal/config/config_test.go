package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "gemini" || cfg.Cooldown != 4*time.Second || cfg.CaptureInterval != 4*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.NoticeTTL != 2*time.Second || cfg.DB != ":memory:" || cfg.Addr != ":8080" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movemate.yaml")
	content := "provider: ollama\ncooldown: 10s\nmodel: llava\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MOVEMATE_MODEL", "bakllava")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "ollama" || cfg.Cooldown != 10*time.Second {
		t.Errorf("config file not applied: %+v", cfg)
	}
	if cfg.Model != "bakllava" {
		t.Errorf("expected env to override file, got model %q", cfg.Model)
	}
}

func TestAPIKeyFallback(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MOVEMATE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "from-gemini")

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "from-gemini" {
		t.Errorf("expected fallback key, got %q", cfg.APIKey)
	}
}

func TestMissingExplicitFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(c *Config)
	}{
		{"bad provider", func(c *Config) { c.Provider = "clip" }},
		{"negative cooldown", func(c *Config) { c.Cooldown = -time.Second }},
		{"zero interval", func(c *Config) { c.CaptureInterval = 0 }},
		{"negative notice", func(c *Config) { c.NoticeTTL = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{Provider: "gemini", Cooldown: 4 * time.Second, CaptureInterval: 4 * time.Second}
			tt.mod(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PWD", dir)
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
