// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Environment overrides
const (
	EnvToken  = "TASKLINE_TOKEN"
	EnvAPIURL = "TASKLINE_API_URL"
)

const (
	defaultBaseURL       = "http://localhost:8080"
	defaultRemoteTimeout = 30 * time.Second
	defaultSweepInterval = 30 * time.Second
	minSweepInterval     = time.Second
	defaultKeyringSvc    = "taskline"
)

// Config represents the application configuration
type Config struct {
	Remote        RemoteConfig  `yaml:"remote"`
	Guest         GuestConfig   `yaml:"guest"`
	Auth          AuthConfig    `yaml:"auth"`
	SweepInterval string        `yaml:"sweep_interval"` // status re-derivation interval (e.g., "30s")
	DefaultView   string        `yaml:"default_view"`   // ALL, TODAY, UPCOMING
	NoPrompt      bool          `yaml:"no_prompt"`
	OutputFormat  string        `yaml:"output_format"`
	Logging       LoggingConfig `yaml:"logging"`
}

// RemoteConfig holds the task server settings
type RemoteConfig struct {
	BaseURL          string `yaml:"base_url"`
	Timeout          string `yaml:"timeout"`            // HTTP client timeout (e.g., "30s")
	RateLimitRetries int    `yaml:"rate_limit_retries"` // retries on HTTP 429, 0 disables
}

// GuestConfig holds settings for the logged-out local mode
type GuestConfig struct {
	DBPath   string `yaml:"db_path"`
	SeedDemo *bool  `yaml:"seed_demo"` // seed demonstration tasks on first use (default: true)
}

// AuthConfig holds identity settings
type AuthConfig struct {
	Service      string `yaml:"service"`       // system keyring service name
	WatchSession *bool  `yaml:"watch_session"` // follow logins from other processes (default: true)
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose           bool  `yaml:"verbose"`
	BackgroundEnabled *bool `yaml:"background_enabled"` // Controls background log file creation (default: true)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL: defaultBaseURL,
			Timeout: defaultRemoteTimeout.String(),
		},
		Guest: GuestConfig{
			DBPath: filepath.Join(GetDataDir(), "guest.db"),
		},
		Auth: AuthConfig{
			Service: defaultKeyringSvc,
		},
		SweepInterval: defaultSweepInterval.String(),
		DefaultView:   "ALL",
		OutputFormat:  "text",
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample and returns defaults.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML and fills in defaults for unset fields
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "text"
	}
	if cfg.DefaultView == "" {
		cfg.DefaultView = "ALL"
	}
	if cfg.Guest.DBPath != "" {
		cfg.Guest.DBPath = ExpandPath(cfg.Guest.DBPath)
	}
	return cfg, nil
}

// DefaultPath returns the config file location following XDG spec
func DefaultPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// save writes the embedded sample configuration to path
func (c *Config) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	switch strings.ToUpper(c.DefaultView) {
	case "", "ALL", "TODAY", "UPCOMING":
	default:
		return fmt.Errorf("invalid default_view: %q (must be ALL, TODAY or UPCOMING)", c.DefaultView)
	}

	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid remote.base_url: %q", c.Remote.BaseURL)
		}
	}

	if c.Remote.Timeout != "" {
		d, err := time.ParseDuration(c.Remote.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration for remote.timeout: %q", c.Remote.Timeout)
		}
	}

	if c.Remote.RateLimitRetries < 0 {
		return fmt.Errorf("remote.rate_limit_retries must not be negative, got %d", c.Remote.RateLimitRetries)
	}

	if c.SweepInterval != "" {
		d, err := time.ParseDuration(c.SweepInterval)
		if err != nil {
			return fmt.Errorf("invalid duration for sweep_interval: %q", c.SweepInterval)
		}
		if d < minSweepInterval {
			return fmt.Errorf("sweep_interval must be at least %s, got %q", minSweepInterval, c.SweepInterval)
		}
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(noPrompt bool, outputFormat string, verbose bool) {
	if noPrompt {
		c.NoPrompt = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
	if verbose {
		c.Logging.Verbose = true
	}
}

// GetBaseURL returns the task server URL without a trailing slash.
// TASKLINE_API_URL overrides the configured value.
func (c *Config) GetBaseURL() string {
	base := c.Remote.BaseURL
	if env := os.Getenv(EnvAPIURL); env != "" {
		base = env
	}
	if base == "" {
		base = defaultBaseURL
	}
	return strings.TrimRight(base, "/")
}

// GetRemoteTimeout returns the HTTP client timeout.
// Returns 30 seconds as default if not configured or if parsing fails.
func (c *Config) GetRemoteTimeout() time.Duration {
	return parseDurationOr(c.Remote.Timeout, defaultRemoteTimeout)
}

// GetRateLimitRetries returns how many times a 429 response is retried
func (c *Config) GetRateLimitRetries() int {
	if c.Remote.RateLimitRetries < 0 {
		return 0
	}
	return c.Remote.RateLimitRetries
}

// GetGuestDBPath returns the path of the guest mode database
func (c *Config) GetGuestDBPath() string {
	if c.Guest.DBPath == "" {
		return filepath.Join(GetDataDir(), "guest.db")
	}
	return c.Guest.DBPath
}

// IsSeedDemoEnabled returns true (default) if an empty guest store is seeded
func (c *Config) IsSeedDemoEnabled() bool {
	if c.Guest.SeedDemo == nil {
		return true
	}
	return *c.Guest.SeedDemo
}

// GetSweepInterval returns the status sweep interval.
// Values below one second are raised to one second.
func (c *Config) GetSweepInterval() time.Duration {
	d := parseDurationOr(c.SweepInterval, defaultSweepInterval)
	if d < minSweepInterval {
		return minSweepInterval
	}
	return d
}

// GetDefaultView returns the smart list shown when none is requested
func (c *Config) GetDefaultView() string {
	if c.DefaultView == "" {
		return "ALL"
	}
	return strings.ToUpper(c.DefaultView)
}

// GetKeyringService returns the system keyring service name
func (c *Config) GetKeyringService() string {
	if c.Auth.Service == "" {
		return defaultKeyringSvc
	}
	return c.Auth.Service
}

// IsSessionWatchEnabled returns true (default) if the session file is watched
func (c *Config) IsSessionWatchEnabled() bool {
	if c.Auth.WatchSession == nil {
		return true
	}
	return *c.Auth.WatchSession
}

// GetSessionPath returns the session marker file shared between processes
func (c *Config) GetSessionPath() string {
	return filepath.Join(GetDataDir(), "session.json")
}

// IsBackgroundLoggingEnabled returns true if background logging is enabled.
// Returns true (default) if not configured.
func (c *Config) IsBackgroundLoggingEnabled() bool {
	if c.Logging.BackgroundEnabled == nil {
		return true
	}
	return *c.Logging.BackgroundEnabled
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "taskline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "taskline")
	}
	return filepath.Join(home, fallbackPath, "taskline")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
