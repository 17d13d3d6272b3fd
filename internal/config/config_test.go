// ABOUTME: Tests for murmur configuration loading and path expansion.
// ABOUTME: Covers YAML parsing, defaults, .env and environment overrides, and save round trip.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"tilde only", "~", home},
		{"tilde slash", "~/foo/bar", filepath.Join(home, "foo", "bar")},
		{"absolute", "/tmp/foo", "/tmp/foo"},
		{"relative", "foo/bar", "foo/bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			if err != nil {
				t.Fatalf("ExpandPath(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// isolate points config and data lookups at temp dirs and runs from an empty cwd
// so a developer's .env cannot leak in.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	t.Setenv("MURMUR_SERVER", "")
	t.Setenv("MURMUR_LOG_LEVEL", "")
	t.Setenv("MURMUR_POLL_INTERVAL", "")
	t.Chdir(t.TempDir())
	return tmpDir
}

func TestLoadDefaultConfig(t *testing.T) {
	tmpDir := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server != "" {
		t.Errorf("expected empty server in default config, got %q", cfg.Server)
	}
	if cfg.Feed.PollInterval != DefaultPollInterval {
		t.Errorf("expected poll interval %v, got %v", DefaultPollInterval, cfg.Feed.PollInterval)
	}
	if cfg.Feed.PageSize != DefaultPageSize {
		t.Errorf("expected page size %d, got %d", DefaultPageSize, cfg.Feed.PageSize)
	}
	if cfg.AuthTimeout != DefaultAuthTimeout {
		t.Errorf("expected auth timeout %v, got %v", DefaultAuthTimeout, cfg.AuthTimeout)
	}
	if got := cfg.RedirectURI(); got != "http://127.0.0.1:8976/oauth/callback" {
		t.Errorf("unexpected redirect URI %q", got)
	}

	sessionPath, err := cfg.GetSessionPath()
	if err != nil {
		t.Fatalf("GetSessionPath() error: %v", err)
	}
	want := filepath.Join(tmpDir, "data", "murmur", "session.toml")
	if sessionPath != want {
		t.Errorf("GetSessionPath() = %q, want %q", sessionPath, want)
	}
}

func TestLoadYAMLConfig(t *testing.T) {
	tmpDir := isolate(t)

	configDir := filepath.Join(tmpDir, "murmur")
	if err := os.MkdirAll(configDir, 0750); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configData := `server: "example.social"
auth_timeout: 2m
log_level: debug
session_path: "~/murmur-session.toml"
redirect:
  listen: "127.0.0.1:9000"
  path: "cb"
feed:
  poll_interval: 30s
  page_size: 40
  fetch_concurrency: 8
  thread_batched: true
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configData), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server != "example.social" {
		t.Errorf("expected server 'example.social', got %q", cfg.Server)
	}
	if cfg.AuthTimeout != 2*time.Minute {
		t.Errorf("expected auth timeout 2m, got %v", cfg.AuthTimeout)
	}
	if cfg.Feed.PollInterval != 30*time.Second {
		t.Errorf("expected poll interval 30s, got %v", cfg.Feed.PollInterval)
	}
	if cfg.Feed.PageSize != 40 || cfg.Feed.FetchConcurrency != 8 || !cfg.Feed.ThreadBatched {
		t.Errorf("unexpected feed config %+v", cfg.Feed)
	}
	if got := cfg.RedirectURI(); got != "http://127.0.0.1:9000/cb" {
		t.Errorf("unexpected redirect URI %q", got)
	}

	home, _ := os.UserHomeDir()
	if got, err := cfg.GetSessionPath(); err != nil {
		t.Fatalf("GetSessionPath() error: %v", err)
	} else if got != filepath.Join(home, "murmur-session.toml") {
		t.Errorf("GetSessionPath() = %q", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)

	if err := os.WriteFile(".env", []byte("MURMUR_SERVER=dotenv.social\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("MURMUR_POLL_INTERVAL", "15s")
	os.Unsetenv("MURMUR_SERVER")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server != "dotenv.social" {
		t.Errorf("expected server from .env, got %q", cfg.Server)
	}
	if cfg.Feed.PollInterval != 15*time.Second {
		t.Errorf("expected poll interval 15s, got %v", cfg.Feed.PollInterval)
	}
}

func TestLoadRejectsBadPollInterval(t *testing.T) {
	isolate(t)
	t.Setenv("MURMUR_POLL_INTERVAL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable MURMUR_POLL_INTERVAL")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)

	cfg := Default()
	cfg.Server = "round.trip"
	cfg.Feed.PollInterval = 45 * time.Second
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Server != "round.trip" {
		t.Errorf("expected server 'round.trip', got %q", loaded.Server)
	}
	if loaded.Feed.PollInterval != 45*time.Second {
		t.Errorf("expected poll interval 45s, got %v", loaded.Feed.PollInterval)
	}
}
