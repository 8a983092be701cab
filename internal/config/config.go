// Package config loads movemate settings from defaults, an optional config
// file, MOVEMATE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings.
type Config struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	Cooldown        time.Duration `mapstructure:"cooldown"`
	CaptureInterval time.Duration `mapstructure:"capture_interval"`
	NoticeTTL       time.Duration `mapstructure:"notice_ttl"`

	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
	Server    string `mapstructure:"server"`
	DB        string `mapstructure:"db"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]interface{}{
	"provider":         "gemini",
	"model":            "",
	"api_key":          "",
	"base_url":         "",
	"request_timeout":  60 * time.Second,
	"cooldown":         4 * time.Second,
	"capture_interval": 4 * time.Second,
	"notice_ttl":       2 * time.Second,
	"addr":             ":8080",
	"static_dir":       "",
	"server":           "http://localhost:8080",
	"db":               ":memory:",
	"log_level":        "info",
	"log_format":       "logfmt",
}

// New returns a viper instance with defaults and environment binding set.
// Flags are bound onto it by the caller before Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("MOVEMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (file, or movemate.* in . and ~/.movemate
// when file is empty), then decodes and validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("movemate")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".movemate"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.APIKey == "" {
		for _, k := range []string{"GEMINI_API_KEY", "API_KEY"} {
			if val := os.Getenv(k); val != "" {
				cfg.APIKey = val
				break
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("invalid provider %q (use gemini, openai or ollama)", c.Provider)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	}
	if c.CaptureInterval <= 0 {
		return fmt.Errorf("capture_interval must be positive, got %s", c.CaptureInterval)
	}
	if c.NoticeTTL < 0 {
		return fmt.Errorf("notice_ttl must not be negative, got %s", c.NoticeTTL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}
	return nil
}
