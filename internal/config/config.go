package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Log       LogConfig       `yaml:"log"`
}

type ServiceConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize int           `yaml:"page_size"`
}

type StoreConfig struct {
	Dir  string `yaml:"dir"`
	Slot string `yaml:"slot"`
}

type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dir := ".rutinas"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".rutinas")
	}
	return &Config{
		Service: ServiceConfig{
			BaseURL:  "http://localhost:8000/api",
			Timeout:  30 * time.Second,
			PageSize: 10,
		},
		Store: StoreConfig{
			Dir:  dir,
			Slot: "access_token",
		},
		Search: SearchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Tailscale: TailscaleConfig{
			Hostname: "rutinas-client",
			StateDir: filepath.Join(dir, "tsnet"),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. Env vars use the prefix RUTINAS_:
//
//	RUTINAS_SERVICE_BASE_URL, RUTINAS_SERVICE_TIMEOUT, RUTINAS_SERVICE_PAGE_SIZE,
//	RUTINAS_STORE_DIR, RUTINAS_SEARCH_DEBOUNCE,
//	RUTINAS_TAILSCALE_ENABLED, RUTINAS_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load but falls back to the defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(Default())
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	cfg.Service.BaseURL = strings.TrimRight(cfg.Service.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RUTINAS_SERVICE_BASE_URL"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := os.Getenv("RUTINAS_SERVICE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Service.Timeout = d
		}
	}
	if v := os.Getenv("RUTINAS_SERVICE_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Service.PageSize = n
		}
	}
	if v := os.Getenv("RUTINAS_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("RUTINAS_SEARCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.Debounce = d
		}
	}
	if v := os.Getenv("RUTINAS_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("RUTINAS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service.base_url must be an absolute URL, got %q", c.Service.BaseURL)
	}
	if c.Service.PageSize < 1 {
		return fmt.Errorf("service.page_size must be positive")
	}
	if c.Service.Timeout <= 0 {
		return fmt.Errorf("service.timeout must be positive")
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce must not be negative")
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	if c.Store.Slot == "" {
		return fmt.Errorf("store.slot is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", l.Level)
}
