// ABOUTME: Authentication states and the SessionManager contract.
// ABOUTME: Callers depend on the interface so tests can swap in doubles.
package session

import (
	"context"

	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
)

// State is a step in the authentication lifecycle.
type State int

const (
	Anonymous State = iota
	AwaitingRedirect
	Authenticated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case AwaitingRedirect:
		return "awaiting_redirect"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// SessionManager owns the authentication state machine and current-user identity.
type SessionManager interface {
	State() State
	Session() models.Session
	CurrentAccount() *models.Account

	// Login registers an app on server and hands the authorize URL to the
	// browser opener. It returns the URL so callers can show it as well.
	Login(ctx context.Context, server string) (string, error)

	// HandleAuthCode exchanges an authorization code for a token.
	HandleAuthCode(ctx context.Context, code, server string) error

	// HandleRedirect validates a delivered redirect and exchanges its code.
	HandleRedirect(ctx context.Context, r models.Redirect) error

	// AwaitRedirect blocks until a redirect arrives, the attempt times out,
	// or ctx is cancelled. Timeout and cancellation abandon the attempt.
	AwaitRedirect(ctx context.Context, redirects <-chan models.Redirect) error

	// Restore resumes a persisted session, demoting to Anonymous on failure.
	Restore(ctx context.Context) error

	// Logout clears every persisted session field. Safe to call repeatedly.
	Logout() error

	// Client returns an authenticated API client.
	Client() (*mastodon.Client, error)

	// OnChange registers a callback invoked after every state transition
	// and returns a func that removes it.
	OnChange(fn func(State)) func()
}
