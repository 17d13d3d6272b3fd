// ABOUTME: Configuration management for murmur with YAML config loading.
// ABOUTME: Handles server defaults, OAuth redirect, feed tuning, .env overrides, and ~ expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRedirectListen   = "127.0.0.1:8976"
	DefaultRedirectPath     = "/oauth/callback"
	DefaultAuthTimeout      = 5 * time.Minute
	DefaultPollInterval     = 60 * time.Second
	DefaultPageSize         = 20
	DefaultFetchConcurrency = 4
	DefaultRelationshipTTL  = 5 * time.Minute
	DefaultReadRetries      = 2
	DefaultRetryWait        = 500 * time.Millisecond
)

// Config stores murmur configuration loaded from ~/.config/murmur/config.yaml.
type Config struct {
	Server      string         `yaml:"server"`
	Redirect    RedirectConfig `yaml:"redirect"`
	Feed        FeedConfig     `yaml:"feed"`
	AuthTimeout time.Duration  `yaml:"auth_timeout"`
	LogLevel    string         `yaml:"log_level"`
	LogJSON     bool           `yaml:"log_json"`
	SessionPath string         `yaml:"session_path"`
}

// RedirectConfig controls the local listener that receives the OAuth redirect.
type RedirectConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// FeedConfig tunes timeline polling, paging, and request fan-out.
type FeedConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	PageSize         int           `yaml:"page_size"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	RelationshipTTL  time.Duration `yaml:"relationship_ttl"`
	RevealDelay      time.Duration `yaml:"reveal_delay"`
	ReadRetries      int           `yaml:"read_retries"`
	RetryWait        time.Duration `yaml:"retry_wait"`
	ThreadBatched    bool          `yaml:"thread_batched"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// RedirectURI returns the URL the server should send the browser back to.
func (c *Config) RedirectURI() string {
	path := c.Redirect.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + c.Redirect.Listen + path
}

// GetSessionPath returns the session file path, defaulting to the data directory.
func (c *Config) GetSessionPath() (string, error) {
	if c.SessionPath != "" {
		return ExpandPath(c.SessionPath)
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.toml"), nil
}

func (c *Config) applyDefaults() {
	if c.Redirect.Listen == "" {
		c.Redirect.Listen = DefaultRedirectListen
	}
	if c.Redirect.Path == "" {
		c.Redirect.Path = DefaultRedirectPath
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.Feed.PollInterval <= 0 {
		c.Feed.PollInterval = DefaultPollInterval
	}
	if c.Feed.PageSize <= 0 {
		c.Feed.PageSize = DefaultPageSize
	}
	if c.Feed.FetchConcurrency <= 0 {
		c.Feed.FetchConcurrency = DefaultFetchConcurrency
	}
	if c.Feed.RelationshipTTL <= 0 {
		c.Feed.RelationshipTTL = DefaultRelationshipTTL
	}
	if c.Feed.ReadRetries < 0 {
		c.Feed.ReadRetries = 0
	}
	if c.Feed.RetryWait <= 0 {
		c.Feed.RetryWait = DefaultRetryWait
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// applyEnv overlays MURMUR_* environment variables, after loading .env from
// the working directory when present.
func (c *Config) applyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	if v := strings.TrimSpace(os.Getenv("MURMUR_SERVER")); v != "" {
		c.Server = v
	}
	if v := strings.TrimSpace(os.Getenv("MURMUR_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("MURMUR_POLL_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MURMUR_POLL_INTERVAL %q: %w", v, err)
		}
		c.Feed.PollInterval = d
	}
	return nil
}

// DataDir returns the murmur data directory.
func DataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "murmur"), nil
}

// GetConfigPath returns the config file path.
func GetConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "murmur", "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// Load reads config from disk, overlays the environment, and applies defaults.
// Returns the default config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
