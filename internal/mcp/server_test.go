// ABOUTME: Tests for MCP server creation and validation.
// ABOUTME: Verifies the server requires a session manager and accepts options.
package mcp

import (
	"testing"

	"github.com/2389-research/murmur/internal/config"
	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/session"
	"github.com/2389-research/murmur/internal/storage"
)

func TestNewServerRequiresSession(t *testing.T) {
	_, err := NewServer(nil)
	if err == nil {
		t.Error("expected error when session manager is nil")
	}
}

func TestNewServerSuccess(t *testing.T) {
	sm := session.NewManager(storage.NewMemoryStore(), session.WithLogger(logging.Discard()))

	server, err := NewServer(sm)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	if server == nil {
		t.Fatal("expected non-nil server")
	}
	if server.cfg == nil {
		t.Error("expected default config")
	}
}

func TestNewServerWithConfig(t *testing.T) {
	sm := session.NewManager(storage.NewMemoryStore(), session.WithLogger(logging.Discard()))
	cfg := config.Default()
	cfg.Server = "example.social"

	server, err := NewServer(sm, WithConfig(cfg), WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	if server.cfg.Server != "example.social" {
		t.Errorf("expected config to be set, got %q", server.cfg.Server)
	}
}
