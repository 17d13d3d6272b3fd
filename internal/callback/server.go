// ABOUTME: Local HTTP receiver for the OAuth authorization redirect.
// ABOUTME: Delivers the first code/state/error it sees on a channel, then ignores the rest.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/models"
)

const (
	successPage = "Login complete. You can close this window and return to murmur."
	failurePage = "Login was not completed: %s. Return to murmur and try again."
)

// Server receives the browser redirect after the user authorizes the app.
type Server struct {
	app     *fiber.App
	addr    string
	path    string
	results chan models.Redirect
	once    sync.Once
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New builds a receiver that will listen on addr and serve path.
func New(addr, path string) *Server {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "murmur",
			DisableStartupMessage: true,
			// Query values outlive the handler on the results channel.
			Immutable: true,
		}),
		addr:    addr,
		path:    path,
		results: make(chan models.Redirect, 1),
		logger:  logging.Logger(),
	}
	s.app.Use(recover.New())
	s.app.Get(path, s.handleRedirect)
	return s
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// RedirectURI returns the URL to register as the OAuth redirect target.
func (s *Server) RedirectURI() string {
	return "http://" + s.Addr() + s.path
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Results delivers the first redirect received.
func (s *Server) Results() <-chan models.Redirect {
	return s.results
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.app.Listener(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("redirect receiver stopped", "error", err)
		}
	}()
	s.logger.Debug("redirect receiver listening", "addr", ln.Addr().String(), "path", s.path)
	return nil
}

// Shutdown stops the receiver.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleRedirect(c *fiber.Ctx) error {
	r := models.Redirect{
		Code:  c.Query("code"),
		State: c.Query("state"),
		Error: c.Query("error_description", c.Query("error")),
	}
	if r.Code == "" && r.Error == "" {
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf(failurePage, "no authorization code"))
	}

	delivered := false
	s.once.Do(func() {
		s.results <- r
		delivered = true
	})
	if !delivered {
		s.logger.Debug("ignoring duplicate redirect")
	}

	if r.Error != "" {
		return c.Status(fiber.StatusOK).SendString(fmt.Sprintf(failurePage, r.Error))
	}
	return c.SendString(successPage)
}
