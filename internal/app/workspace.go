// ABOUTME: Workspace wires one authenticated session to its feeds, caches, and coordinators.
// ABOUTME: Built after login or restore; torn down on logout so pollers cannot outlive the session.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2389-research/murmur/internal/config"
	"github.com/2389-research/murmur/internal/feed"
	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/mutation"
	"github.com/2389-research/murmur/internal/relcache"
	"github.com/2389-research/murmur/internal/session"
	"github.com/2389-research/murmur/internal/thread"
)

// Workspace holds the per-session view state.
type Workspace struct {
	Client        *mastodon.Client
	Session       session.SessionManager
	Relationships *relcache.Cache
	Mutations     *mutation.Coordinator
	Threads       *thread.Assembler
	Notifications *feed.Engine[models.Notification]

	cfg    *config.Config
	logger *slog.Logger

	mu          sync.Mutex
	timelines   map[string]*feed.Engine[models.Post]
	closed      bool
	unsubscribe func()
}

// NewWorkspace builds a workspace for the session's current login.
func NewWorkspace(sm session.SessionManager, cfg *config.Config) (*Workspace, error) {
	client, err := sm.Client()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logging.WithFields("server", client.Server())

	rels := relcache.New(client.Relationships,
		relcache.WithTTL(cfg.Feed.RelationshipTTL),
		relcache.WithConcurrency(cfg.Feed.FetchConcurrency),
	)

	w := &Workspace{
		Client:        client,
		Session:       sm,
		Relationships: rels,
		Threads: thread.NewAssembler(client,
			thread.WithConcurrency(cfg.Feed.FetchConcurrency),
			thread.WithBatched(cfg.Feed.ThreadBatched),
			thread.WithLogger(logger),
		),
		cfg:       cfg,
		logger:    logger,
		timelines: make(map[string]*feed.Engine[models.Post]),
	}
	w.Mutations = mutation.NewCoordinator(client,
		mutation.WithRelationships(rels),
		mutation.WithUserID(func() string { return sm.Session().UserID }),
		mutation.WithLogger(logger),
	)
	w.Notifications = feed.NewEngine(feed.NotificationSource(client), w.feedOptions("notifications"))
	w.Mutations.Attach(feed.NewNotificationView(w.Notifications))

	unsubscribe := sm.OnChange(func(s session.State) {
		if s != session.Authenticated {
			w.Close()
		}
	})
	w.mu.Lock()
	w.unsubscribe = unsubscribe
	w.mu.Unlock()
	return w, nil
}

func (w *Workspace) feedOptions(name string) feed.Options {
	return feed.Options{
		Name:      name,
		PageSize:  w.cfg.Feed.PageSize,
		Retries:   w.cfg.Feed.ReadRetries,
		RetryWait: w.cfg.Feed.RetryWait,
		Logger:    w.logger,
	}
}

// Timeline returns the engine for a named timeline, creating it on first use.
func (w *Workspace) Timeline(name string) (*feed.Engine[models.Post], error) {
	source, err := feed.TimelineSource(w.Client, name)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = feed.TimelineHome
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, models.ErrNotAuthenticated
	}
	if e, ok := w.timelines[name]; ok {
		return e, nil
	}
	e := feed.NewEngine(source, w.feedOptions(name))
	w.timelines[name] = e
	w.Mutations.Attach(feed.NewPostView(e))
	return e, nil
}

// AccountFeed returns a fresh engine over one account's posts.
func (w *Workspace) AccountFeed(accountID string) *feed.Engine[models.Post] {
	e := feed.NewEngine(feed.AccountSource(w.Client, accountID), w.feedOptions("account:"+accountID))
	w.Mutations.Attach(feed.NewPostView(e))
	return e
}

// Followers returns a pager over the accounts following accountID.
func (w *Workspace) Followers(accountID string, onInsert func(models.Account)) *feed.AccountPager {
	p := feed.NewAccountPager(feed.FollowersOf(w.Client, accountID), w.pagerOptions(onInsert))
	w.Mutations.AttachAccounts(p)
	return p
}

// Following returns a pager over the accounts accountID follows.
func (w *Workspace) Following(accountID string, onInsert func(models.Account)) *feed.AccountPager {
	p := feed.NewAccountPager(feed.FollowingOf(w.Client, accountID), w.pagerOptions(onInsert))
	w.Mutations.AttachAccounts(p)
	return p
}

func (w *Workspace) pagerOptions(onInsert func(models.Account)) feed.PagerOptions {
	return feed.PagerOptions{
		PageSize:      w.cfg.Feed.PageSize,
		Retries:       w.cfg.Feed.ReadRetries,
		RetryWait:     w.cfg.Feed.RetryWait,
		RevealDelay:   w.cfg.Feed.RevealDelay,
		OnInsert:      onInsert,
		Relationships: w.Relationships,
		Logger:        w.logger,
	}
}

// StartPolling polls every timeline created so far plus notifications.
func (w *Workspace) StartPolling(ctx context.Context) {
	w.mu.Lock()
	engines := make([]*feed.Engine[models.Post], 0, len(w.timelines))
	for _, e := range w.timelines {
		engines = append(engines, e)
	}
	w.mu.Unlock()

	for _, e := range engines {
		e.StartPolling(ctx, w.cfg.Feed.PollInterval)
	}
	w.Notifications.StartPolling(ctx, w.cfg.Feed.PollInterval)
	w.logger.Debug("polling started", "feeds", len(engines)+1, "interval", w.cfg.Feed.PollInterval)
}

// Closed reports whether the workspace has been torn down.
func (w *Workspace) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close stops every poller, drops cached relationships, and stops listening
// for session changes. Safe to call twice.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	engines := make([]*feed.Engine[models.Post], 0, len(w.timelines))
	for _, e := range w.timelines {
		engines = append(engines, e)
	}
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	for _, e := range engines {
		e.Stop()
	}
	w.Notifications.Stop()
	w.Relationships.Clear()
}
