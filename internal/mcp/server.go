// ABOUTME: MCP server initialization and configuration for murmur.
// ABOUTME: Exposes session, timeline, mutation, and thread operations as tools for AI agents.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/murmur/internal/app"
	"github.com/2389-research/murmur/internal/config"
	"github.com/2389-research/murmur/internal/feed"
	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/session"
	"github.com/2389-research/murmur/internal/storage"
)

// Server wraps the MCP server with the session and the workspace built on it.
type Server struct {
	mcp     *gomcp.Server
	session session.SessionManager
	cfg     *config.Config
	logger  *slog.Logger

	mu        sync.Mutex
	workspace *app.Workspace
	pagers    map[string]*feed.AccountPager
}

// ServerOption configures optional Server dependencies.
type ServerOption func(*Server)

// WithConfig sets the config used to tune feeds and fan-out.
func WithConfig(cfg *config.Config) ServerOption {
	return func(s *Server) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSessionManager builds the session manager for an MCP server. No local
// receiver runs in stdio mode, so the agent relays the code the server
// displays and the out-of-band redirect is always registered.
func NewSessionManager(store storage.KVStore, opts ...session.Option) *session.Manager {
	return session.NewManager(store, slices.Concat(opts, []session.Option{
		session.WithRedirectURI(mastodon.OutOfBandRedirect),
	})...)
}

// NewServer creates an MCP server bound to a session manager.
func NewServer(sm session.SessionManager, opts ...ServerOption) (*Server, error) {
	if sm == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	mcpServer := gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "murmur",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		session: sm,
		cfg:     config.Default(),
		logger:  logging.Logger(),
		pagers:  make(map[string]*feed.AccountPager),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerSessionTools()
	s.registerFeedTools()
	s.registerMutationTools()

	return s, nil
}

// Serve starts the MCP server in stdio mode.
func (s *Server) Serve(ctx context.Context) error {
	defer s.closeWorkspace()
	return s.mcp.Run(ctx, &gomcp.StdioTransport{})
}

// current returns the live workspace, building a new one after a login.
func (s *Server) current() (*app.Workspace, error) {
	if s.session.State() != session.Authenticated {
		return nil, models.ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspace != nil && !s.workspace.Closed() {
		return s.workspace, nil
	}
	w, err := app.NewWorkspace(s.session, s.cfg)
	if err != nil {
		return nil, err
	}
	s.workspace = w
	s.pagers = make(map[string]*feed.AccountPager)
	return w, nil
}

func (s *Server) closeWorkspace() {
	s.mu.Lock()
	w := s.workspace
	s.workspace = nil
	s.pagers = make(map[string]*feed.AccountPager)
	s.mu.Unlock()
	if w != nil {
		w.Close()
	}
}

// pager returns the relationship pager for key, creating it with build on first use.
func (s *Server) pager(key string, build func() *feed.AccountPager) *feed.AccountPager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pagers[key]; ok {
		return p
	}
	p := build()
	s.pagers[key] = p
	return p
}
