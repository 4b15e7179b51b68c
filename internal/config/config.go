package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all EquiScore configuration.
type Config struct {
	// Results feed
	Feed FeedConfig `yaml:"feed"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Live push to browsers
	Push PushConfig `yaml:"push"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// FeedConfig locates the provider's XML feed and the flag table.
type FeedConfig struct {
	Path          string `yaml:"path"`
	FlagsPath     string `yaml:"flags_path"`
	Debounce      string `yaml:"debounce"`       // settle time before a reload
	ReloadRetries int    `yaml:"reload_retries"` // parse attempts per reload
	RetryDelay    string `yaml:"retry_delay"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	StaticDir          string `yaml:"static_dir"`
	TemplatePath       string `yaml:"template_path"` // empty = embedded table.html
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	Gzip               bool   `yaml:"gzip"`
	ShutdownTimeout    string `yaml:"shutdown_timeout"`
}

// PushConfig configures the SSE and WebSocket endpoints.
type PushConfig struct {
	Keepalive string `yaml:"keepalive"`
	WebSocket bool   `yaml:"websocket"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			Path:          "data/equiscore.xml",
			FlagsPath:     "static/flags.json",
			Debounce:      "250ms",
			ReloadRetries: 3,
			RetryDelay:    "100ms",
		},

		Server: ServerConfig{
			Addr:               "0.0.0.0:5000",
			StaticDir:          "static",
			CORSAllowedOrigins: "*",
			Gzip:               true,
			ShutdownTimeout:    "5s",
		},

		Push: PushConfig{
			Keepalive: "15s",
			WebSocket: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults plus environment when there is no file
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("EQUISCORE_FEED"); path != "" {
		c.Feed.Path = path
	}
	if path := os.Getenv("EQUISCORE_FLAGS"); path != "" {
		c.Feed.FlagsPath = path
	}
	if addr := os.Getenv("EQUISCORE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if dir := os.Getenv("EQUISCORE_STATIC_DIR"); dir != "" {
		c.Server.StaticDir = dir
	}
	if level := os.Getenv("EQUISCORE_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetDebounce returns the feed debounce window as a duration.
func (c *Config) GetDebounce() time.Duration {
	return parseDuration(c.Feed.Debounce, 250*time.Millisecond)
}

// GetRetryDelay returns the delay between parse attempts.
func (c *Config) GetRetryDelay() time.Duration {
	return parseDuration(c.Feed.RetryDelay, 100*time.Millisecond)
}

// GetShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 5*time.Second)
}

// GetKeepalive returns the SSE keepalive interval.
func (c *Config) GetKeepalive() time.Duration {
	return parseDuration(c.Push.Keepalive, 15*time.Second)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Feed.Path == "" {
		return fmt.Errorf("feed path not configured (set feed.path or EQUISCORE_FEED)")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server address not configured (set server.addr or EQUISCORE_ADDR)")
	}
	if c.Feed.ReloadRetries < 1 {
		return fmt.Errorf("feed.reload_retries must be at least 1, got %d", c.Feed.ReloadRetries)
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	return nil
}
