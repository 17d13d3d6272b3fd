// ABOUTME: Manager implements SessionManager over a KVStore and the remote OAuth API.
// ABOUTME: Enforces one in-flight authentication attempt with a redirect deadline.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/storage"
)

const (
	// DefaultClientName is the application name registered with servers.
	DefaultClientName = "murmur"
	// DefaultTimeout bounds how long a login waits for its redirect.
	DefaultTimeout = 5 * time.Minute
)

// Opener hands an authorize URL to the user's browser.
type Opener func(url string) error

// attempt tracks the single in-flight authentication. The pointer is its
// identity: work that finds a different attempt current must not commit.
type attempt struct {
	server     string
	nonce      string
	deadline   time.Time
	exchanging bool
	timer      *time.Timer
}

type listener struct {
	id uint64
	fn func(State)
}

// Manager is the SessionManager implementation.
type Manager struct {
	mu         sync.Mutex
	store      storage.KVStore
	state      State
	session    models.Session
	account    *models.Account
	client     *mastodon.Client
	attempt    *attempt
	listeners  []listener
	listenerID uint64

	opener      Opener
	redirectURI string
	clientName  string
	website     string
	scopes      []string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithOpener replaces the browser opener.
func WithOpener(o Opener) Option {
	return func(m *Manager) {
		if o != nil {
			m.opener = o
		}
	}
}

// WithRedirectURI sets the redirect target registered with the server.
func WithRedirectURI(uri string) Option {
	return func(m *Manager) {
		if uri != "" {
			m.redirectURI = uri
		}
	}
}

// WithClientName sets the application name shown on the authorize page.
func WithClientName(name, website string) Option {
	return func(m *Manager) {
		if name != "" {
			m.clientName = name
		}
		m.website = website
	}
}

// WithScopes overrides the requested OAuth scopes.
func WithScopes(scopes ...string) Option {
	return func(m *Manager) {
		if len(scopes) > 0 {
			m.scopes = scopes
		}
	}
}

// WithTimeout bounds how long an attempt may wait for its redirect.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for every API call.
func WithHTTPClient(h *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates an anonymous Manager. Call Restore to resume a saved session.
func NewManager(store storage.KVStore, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		opener:      browser.OpenURL,
		redirectURI: mastodon.OutOfBandRedirect,
		clientName:  DefaultClientName,
		scopes:      mastodon.DefaultScopes,
		timeout:     DefaultTimeout,
		logger:      logging.Logger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ SessionManager = (*Manager)(nil)

// State returns the current state. An attempt past its deadline is
// abandoned here if its timer has not fired yet.
func (m *Manager) State() State {
	m.mu.Lock()
	var changed *transition
	if m.state == AwaitingRedirect && m.expiredLocked() {
		changed = m.resetLocked()
	}
	s := m.state
	m.mu.Unlock()
	m.notify(changed)
	return s
}

// Session returns a copy of the current credentials.
func (m *Manager) Session() models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// CurrentAccount returns the logged-in account, or nil.
func (m *Manager) CurrentAccount() *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return nil
	}
	acct := *m.account
	return &acct
}

// OnChange registers fn to run after each transition. The returned func
// removes it.
func (m *Manager) OnChange(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	m.listenerID++
	id := m.listenerID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Client returns an API client bound to the session token.
func (m *Manager) Client() (*mastodon.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated || m.client == nil {
		return nil, models.ErrNotAuthenticated
	}
	return m.client, nil
}

func (m *Manager) newClient(server, token string) (*mastodon.Client, error) {
	opts := []mastodon.Option{mastodon.WithHTTPClient(m.httpClient)}
	if token != "" {
		opts = append(opts, mastodon.WithToken(token))
	}
	return mastodon.NewClient(server, opts...)
}

// Login starts an authentication attempt against server.
func (m *Manager) Login(ctx context.Context, server string) (string, error) {
	server = mastodon.NormalizeServer(server)
	if server == "" {
		return "", models.Validationf("server is required")
	}

	m.mu.Lock()
	if m.state == Authenticated {
		current := m.session.Server
		m.mu.Unlock()
		return "", models.Validationf("already logged in to %s; log out first", current)
	}
	if m.attempt != nil && (m.attempt.exchanging || m.now().Before(m.attempt.deadline)) {
		m.mu.Unlock()
		return "", models.ErrAuthInProgress
	}
	// Reserve the slot before any network call.
	stale := m.resetLocked()
	a := &attempt{server: server, deadline: m.now().Add(m.timeout)}
	m.attempt = a

	// Stale credentials from another server must not survive a new login.
	if err := m.store.SetMany(map[string]string{
		storage.KeyServer:       server,
		storage.KeyAccessToken:  "",
		storage.KeyUserID:       "",
		storage.KeyClientID:     "",
		storage.KeyClientSecret: "",
	}); err != nil {
		m.attempt = nil
		m.mu.Unlock()
		m.notify(stale)
		return "", fmt.Errorf("failed to persist server: %w", err)
	}
	m.mu.Unlock()
	m.notify(stale)

	log := m.logger.With("server", server)

	client, err := m.newClient(server, "")
	if err != nil {
		m.abandon(a)
		return "", err
	}

	app, err := client.RegisterApp(ctx, mastodon.AppRegistration{
		ClientName:  m.clientName,
		RedirectURI: m.redirectURI,
		Scopes:      m.scopes,
		Website:     m.website,
	})
	if err != nil {
		m.abandon(a)
		log.Warn("app registration failed", "error", err)
		return "", models.NewAuthError("register app", err)
	}
	if app.ClientID == "" || app.ClientSecret == "" {
		m.abandon(a)
		log.Warn("app registration returned incomplete credentials")
		return "", models.NewAuthError("register app", errors.New("response missing client_id or client_secret"))
	}

	nonce := uuid.NewString()
	authURL := client.AuthorizeURL(app.ClientID, m.redirectURI, nonce, m.scopes)

	m.mu.Lock()
	if m.attempt != a {
		m.mu.Unlock()
		log.Info("login cancelled during app registration")
		return "", models.NewAuthError("register app", errLoginCancelled)
	}
	if err := m.store.SetMany(map[string]string{
		storage.KeyClientID:     app.ClientID,
		storage.KeyClientSecret: app.ClientSecret,
	}); err != nil {
		changed := m.resetLocked()
		m.mu.Unlock()
		m.notify(changed)
		return "", fmt.Errorf("failed to persist client credentials: %w", err)
	}
	a.nonce = nonce
	a.deadline = m.now().Add(m.timeout)
	a.timer = time.AfterFunc(m.timeout, func() { m.expire(a) })
	m.session = models.Session{Server: server, ClientID: app.ClientID, ClientSecret: app.ClientSecret}
	changed := m.setStateLocked(AwaitingRedirect)
	m.mu.Unlock()
	m.notify(changed)

	log.Info("awaiting authorization redirect", "timeout", m.timeout)
	if err := m.opener(authURL); err != nil {
		log.Warn("failed to open browser", "error", err)
	}
	return authURL, nil
}

var errLoginCancelled = errors.New("login was cancelled")

// HandleRedirect checks the redirect's state nonce and exchanges its code.
func (m *Manager) HandleRedirect(ctx context.Context, r models.Redirect) error {
	m.mu.Lock()
	a := m.attempt
	var nonce, server string
	if a != nil {
		nonce, server = a.nonce, a.server
	}
	m.mu.Unlock()

	if r.Error != "" {
		m.abandon(a)
		return models.NewAuthError("authorize", errors.New(r.Error))
	}
	if nonce != "" && r.State != "" && r.State != nonce {
		m.abandon(a)
		return models.NewAuthError("authorize", errors.New("redirect state does not match this attempt"))
	}
	return m.HandleAuthCode(ctx, r.Code, server)
}

// HandleAuthCode finishes authentication with code. server defaults to the
// persisted server and must match it when given. A login must be awaiting
// its redirect and still inside its deadline.
func (m *Manager) HandleAuthCode(ctx context.Context, code, server string) error {
	m.mu.Lock()
	if m.state == Authenticated {
		m.mu.Unlock()
		return models.Validationf("already logged in")
	}
	a := m.attempt
	if a == nil {
		m.mu.Unlock()
		return models.NewAuthError("handle code", errors.New("no login is awaiting a code; log in again"))
	}
	if a.exchanging || m.state != AwaitingRedirect {
		m.mu.Unlock()
		return models.ErrAuthInProgress
	}
	if m.expiredLocked() {
		changed := m.resetLocked()
		m.mu.Unlock()
		m.notify(changed)
		m.logger.Warn("authorization code arrived after the deadline", "server", a.server, "timeout", m.timeout)
		return models.NewAuthError("handle code", models.ErrAuthTimeout)
	}
	a.exchanging = true
	if a.timer != nil {
		a.timer.Stop()
	}
	m.mu.Unlock()

	if code == "" {
		m.abandon(a)
		return models.NewAuthError("handle code", errors.New("authorization code missing"))
	}

	stored, err := m.readSession()
	if err != nil {
		m.abandon(a)
		return err
	}
	if server = mastodon.NormalizeServer(server); server == "" {
		server = stored.Server
	}
	if server == "" || server != stored.Server {
		m.abandon(a)
		return models.NewAuthError("handle code", fmt.Errorf("code is for %q but login started on %q", server, stored.Server))
	}
	if !stored.HasClient() {
		m.abandon(a)
		return models.NewAuthError("handle code", errors.New("client credentials missing; log in again"))
	}

	log := m.logger.With("server", server)

	anon, err := m.newClient(server, "")
	if err != nil {
		m.abandon(a)
		return err
	}
	token, err := anon.ExchangeCode(ctx, stored.ClientID, stored.ClientSecret, m.redirectURI, code)
	if err != nil {
		m.abandon(a)
		log.Warn("code exchange failed", "error", err)
		return models.NewAuthError("exchange code", err)
	}

	client := anon.WithAccessToken(token)
	acct, err := client.VerifyCredentials(ctx)
	if err != nil {
		m.abandon(a)
		log.Warn("profile fetch failed", "error", err)
		return models.NewAuthError("fetch profile", err)
	}

	stored.AccessToken = token
	stored.UserID = acct.ID

	m.mu.Lock()
	if m.attempt != a {
		m.mu.Unlock()
		log.Info("login cancelled during code exchange")
		return models.NewAuthError("handle code", errLoginCancelled)
	}
	if err := m.store.SetMany(map[string]string{
		storage.KeyServer:      server,
		storage.KeyAccessToken: token,
		storage.KeyUserID:      acct.ID,
	}); err != nil {
		changed := m.resetLocked()
		m.mu.Unlock()
		m.notify(changed)
		return fmt.Errorf("failed to persist session: %w", err)
	}
	m.session = stored
	m.account = acct
	m.client = client
	m.attempt = nil
	changed := m.setStateLocked(Authenticated)
	m.mu.Unlock()
	m.notify(changed)

	log.Info("logged in", "account", acct.Acct)
	return nil
}

// AwaitRedirect waits for the attempt's redirect until its deadline.
func (m *Manager) AwaitRedirect(ctx context.Context, redirects <-chan models.Redirect) error {
	m.mu.Lock()
	a := m.attempt
	if m.state != AwaitingRedirect || a == nil {
		m.mu.Unlock()
		return models.Validationf("no login awaiting a redirect")
	}
	wait := a.deadline.Sub(m.now())
	m.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case r, ok := <-redirects:
		if !ok {
			m.abandon(a)
			return models.ErrAuthTimeout
		}
		return m.HandleRedirect(ctx, r)
	case <-timer.C:
		m.abandon(a)
		m.logger.Warn("authorization redirect timed out", "timeout", m.timeout)
		return models.ErrAuthTimeout
	case <-ctx.Done():
		m.abandon(a)
		return fmt.Errorf("%w: %w", models.ErrAuthTimeout, ctx.Err())
	}
}

// Restore resumes the persisted session. Missing credentials leave the
// manager Anonymous without error.
func (m *Manager) Restore(ctx context.Context) error {
	stored, err := m.readSession()
	if err != nil {
		return err
	}
	if !stored.HasToken() {
		return nil
	}

	client, err := m.newClient(stored.Server, stored.AccessToken)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.session = stored
	m.client = client
	changed := m.setStateLocked(Authenticated)
	m.mu.Unlock()
	m.notify(changed)

	log := m.logger.With("server", stored.Server)

	acct, err := client.VerifyCredentials(ctx)
	if err != nil {
		m.demote()
		if mastodon.IsUnauthorized(err) {
			log.Warn("stored token rejected; clearing credentials", "error", err)
			if clearErr := m.store.SetMany(map[string]string{
				storage.KeyAccessToken: "",
				storage.KeyUserID:      "",
			}); clearErr != nil {
				return errors.Join(models.NewAuthError("restore session", err), clearErr)
			}
			return models.NewAuthError("restore session", err)
		}
		log.Warn("could not verify stored session", "error", err)
		return fmt.Errorf("failed to restore session: %w", err)
	}

	if acct.ID != stored.UserID {
		if err := m.store.Set(storage.KeyUserID, acct.ID); err != nil {
			log.Warn("failed to persist user id", "error", err)
		}
	}

	m.mu.Lock()
	m.session.UserID = acct.ID
	m.account = acct
	m.mu.Unlock()

	log.Debug("session restored", "account", acct.Acct)
	return nil
}

// Logout returns to Anonymous and clears the store. Any attempt in flight
// is cancelled and will not persist its result.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.dropAttemptLocked()
	m.session = models.Session{}
	m.account = nil
	m.client = nil
	changed := m.setStateLocked(Anonymous)
	err := m.store.Clear()
	m.mu.Unlock()
	m.notify(changed)

	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// abandon drops to Anonymous if a is still the current attempt.
func (m *Manager) abandon(a *attempt) {
	m.mu.Lock()
	if a == nil || m.attempt != a {
		m.mu.Unlock()
		return
	}
	changed := m.resetLocked()
	m.mu.Unlock()
	m.notify(changed)
}

// expire abandons a when its deadline passes without a code.
func (m *Manager) expire(a *attempt) {
	m.mu.Lock()
	if m.attempt != a || a.exchanging {
		m.mu.Unlock()
		return
	}
	changed := m.resetLocked()
	m.mu.Unlock()
	m.notify(changed)
	m.logger.Warn("authorization redirect timed out", "server", a.server, "timeout", m.timeout)
}

// demote drops a restored session to Anonymous.
func (m *Manager) demote() {
	m.mu.Lock()
	changed := m.resetLocked()
	m.mu.Unlock()
	m.notify(changed)
}

// resetLocked drops the attempt and unsaved credentials. Caller holds m.mu.
func (m *Manager) resetLocked() *transition {
	m.dropAttemptLocked()
	m.account = nil
	m.client = nil
	m.session.AccessToken = ""
	return m.setStateLocked(Anonymous)
}

// dropAttemptLocked forgets the attempt and stops its timer. Caller holds m.mu.
func (m *Manager) dropAttemptLocked() {
	if m.attempt != nil && m.attempt.timer != nil {
		m.attempt.timer.Stop()
	}
	m.attempt = nil
}

// expiredLocked reports whether the attempt is still waiting past its
// deadline. Caller holds m.mu.
func (m *Manager) expiredLocked() bool {
	a := m.attempt
	return a != nil && !a.exchanging && !m.now().Before(a.deadline)
}

func (m *Manager) readSession() (models.Session, error) {
	var s models.Session
	fields := []struct {
		key string
		dst *string
	}{
		{storage.KeyServer, &s.Server},
		{storage.KeyAccessToken, &s.AccessToken},
		{storage.KeyClientID, &s.ClientID},
		{storage.KeyClientSecret, &s.ClientSecret},
		{storage.KeyUserID, &s.UserID},
	}
	for _, f := range fields {
		v, err := m.store.Get(f.key)
		if err != nil {
			return models.Session{}, fmt.Errorf("failed to read %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return s, nil
}

// setStateLocked records the new state and returns the listeners to notify
// if it changed. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) *transition {
	if m.state == s {
		return nil
	}
	m.state = s
	fns := make([]func(State), 0, len(m.listeners))
	for _, l := range m.listeners {
		fns = append(fns, l.fn)
	}
	return &transition{state: s, listeners: fns}
}

type transition struct {
	state     State
	listeners []func(State)
}

func (m *Manager) notify(t *transition) {
	if t == nil {
		return
	}
	for _, fn := range t.listeners {
		fn(t.state)
	}
}
