// ABOUTME: FeedSyncEngine: cursor backfill, head polling into a pending buffer, reveal, and refresh.
// ABOUTME: Generic over any item with a unique key so posts and notifications share one engine.
package feed

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
)

const (
	// DefaultPageSize is the page size requested when Options leaves it unset.
	DefaultPageSize = 20
	// DefaultPollInterval is how often StartPolling checks the head by default.
	DefaultPollInterval = 60 * time.Second
)

// Item is anything a feed can hold. Keys are opaque server ids.
type Item interface {
	Key() string
}

// Source reads one newest-first page. An empty MaxID reads the head.
type Source[T Item] func(ctx context.Context, q mastodon.PageQuery) ([]T, error)

// Options tunes an Engine.
type Options struct {
	Name      string
	PageSize  int
	Retries   int
	RetryWait time.Duration
	Logger    *slog.Logger
}

// Engine keeps one ordered, deduplicated list in sync with the server.
type Engine[T Item] struct {
	source Source[T]
	name   string
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	items       []T
	listed      map[string]struct{}
	seen        map[string]struct{}
	pending     []T
	cursor      models.FeedCursor
	loading     bool
	generation  uint64
	scrollToken uint64
	observers   []func()

	pollMu   sync.Mutex
	stopPoll context.CancelFunc
	pollDone chan struct{}
}

// NewEngine creates an empty engine ready for its first Fetch.
func NewEngine[T Item](source Source[T], opts Options) *Engine[T] {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.Logger()
	}
	e := &Engine[T]{
		source: source,
		name:   opts.Name,
		opts:   opts,
		logger: opts.Logger.With("feed", opts.Name),
	}
	e.resetLocked()
	return e
}

// Name returns the feed name used in logs.
func (e *Engine[T]) Name() string {
	return e.name
}

func (e *Engine[T]) resetLocked() {
	e.items = nil
	e.listed = make(map[string]struct{})
	e.seen = make(map[string]struct{})
	e.pending = nil
	e.cursor = models.FeedCursor{HasMore: true}
	e.loading = false
	e.generation++
}

// Fetch loads the next older page. It is a no-op once the feed is exhausted
// or while another fetch is running. A failure leaves the list and cursor
// untouched; only an empty page marks the feed exhausted.
func (e *Engine[T]) Fetch(ctx context.Context) (int, error) {
	e.mu.Lock()
	if !e.cursor.HasMore || e.loading {
		e.mu.Unlock()
		return 0, nil
	}
	e.loading = true
	gen := e.generation
	q := mastodon.PageQuery{MaxID: e.cursor.MaxID, Limit: e.opts.PageSize}
	e.mu.Unlock()

	page, err := retryRead(ctx, e.opts.Retries, e.opts.RetryWait, func() ([]T, error) {
		return e.source(ctx, q)
	})

	e.mu.Lock()
	if gen != e.generation {
		// Refreshed while this page was in flight.
		e.mu.Unlock()
		return 0, nil
	}
	e.loading = false
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn("feed fetch failed", "max_id", q.MaxID, "error", err)
		return 0, err
	}
	if len(page) == 0 {
		e.cursor.HasMore = false
		e.mu.Unlock()
		e.logger.Debug("feed exhausted", "max_id", q.MaxID)
		return 0, nil
	}

	added := 0
	for _, item := range page {
		key := item.Key()
		if _, dup := e.listed[key]; dup {
			continue
		}
		e.items = append(e.items, item)
		e.listed[key] = struct{}{}
		e.seen[key] = struct{}{}
		added++
	}
	e.cursor.MaxID = page[len(page)-1].Key()
	observers := e.observersLocked()
	e.mu.Unlock()

	if dropped := len(page) - added; dropped > 0 {
		e.logger.Debug("dropped items already listed", "count", dropped)
	}
	notifyAll(observers)
	return added, nil
}

// Poll reads the head page and buffers items not yet seen. Visible items are
// never touched; call Reveal to merge the buffer.
func (e *Engine[T]) Poll(ctx context.Context) (int, error) {
	e.mu.Lock()
	gen := e.generation
	e.mu.Unlock()

	page, err := retryRead(ctx, e.opts.Retries, e.opts.RetryWait, func() ([]T, error) {
		return e.source(ctx, mastodon.PageQuery{Limit: e.opts.PageSize})
	})
	if err != nil {
		e.logger.Warn("feed poll failed", "error", err)
		return 0, err
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return 0, nil
	}
	queued := make(map[string]struct{}, len(e.pending))
	for _, item := range e.pending {
		queued[item.Key()] = struct{}{}
	}
	var fresh []T
	for _, item := range page {
		key := item.Key()
		if _, ok := e.seen[key]; ok {
			continue
		}
		if _, ok := queued[key]; ok {
			continue
		}
		queued[key] = struct{}{}
		fresh = append(fresh, item)
	}
	if len(fresh) == 0 {
		e.mu.Unlock()
		return 0, nil
	}
	e.pending = append(fresh, e.pending...)
	observers := e.observersLocked()
	e.mu.Unlock()

	e.logger.Debug("new items waiting", "count", len(fresh))
	notifyAll(observers)
	return len(fresh), nil
}

// PendingCount returns how many polled items are waiting to be revealed.
func (e *Engine[T]) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Reveal prepends the pending items, marks them seen, and bumps the scroll
// token so observers jump back to the top.
func (e *Engine[T]) Reveal() int {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return 0
	}
	head := make([]T, 0, len(e.pending))
	for _, item := range e.pending {
		key := item.Key()
		e.seen[key] = struct{}{}
		if _, dup := e.listed[key]; dup {
			continue
		}
		e.listed[key] = struct{}{}
		head = append(head, item)
	}
	e.items = append(head, e.items...)
	e.pending = nil
	e.scrollToken++
	observers := e.observersLocked()
	e.mu.Unlock()

	notifyAll(observers)
	return len(head)
}

// Reset clears the list, cursor, seen set, and pending buffer. Any fetch or
// poll already in flight is discarded when it returns.
func (e *Engine[T]) Reset() {
	e.mu.Lock()
	e.resetLocked()
	e.scrollToken++
	observers := e.observersLocked()
	e.mu.Unlock()
	notifyAll(observers)
}

// Refresh starts over from the newest page.
func (e *Engine[T]) Refresh(ctx context.Context) (int, error) {
	e.Reset()
	return e.Fetch(ctx)
}

// Items returns a copy of the visible list, newest first.
func (e *Engine[T]) Items() []T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]T(nil), e.items...)
}

// Pending returns a copy of the buffered new items.
func (e *Engine[T]) Pending() []T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]T(nil), e.pending...)
}

// Cursor returns the backfill cursor.
func (e *Engine[T]) Cursor() models.FeedCursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Seen reports whether key is in the seen set.
func (e *Engine[T]) Seen(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.seen[key]
	return ok
}

// SeenCount returns the size of the seen set.
func (e *Engine[T]) SeenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

// ScrollToken changes every time the view should return to the top.
func (e *Engine[T]) ScrollToken() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrollToken
}

// Loading reports whether a fetch is in flight.
func (e *Engine[T]) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Find returns the first visible or pending item that matches.
func (e *Engine[T]) Find(match func(T) bool) (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, list := range [][]T{e.items, e.pending} {
		for _, item := range list {
			if match(item) {
				return item, true
			}
		}
	}
	var zero T
	return zero, false
}

// UpdateWhere replaces every matching item, visible or pending, with fn(item).
func (e *Engine[T]) UpdateWhere(match func(T) bool, fn func(T) T) int {
	e.mu.Lock()
	n := 0
	for _, list := range [][]T{e.items, e.pending} {
		for i := range list {
			if match(list[i]) {
				list[i] = fn(list[i])
				n++
			}
		}
	}
	var observers []func()
	if n > 0 {
		observers = e.observersLocked()
	}
	e.mu.Unlock()
	notifyAll(observers)
	return n
}

// RemoveWhere drops every matching item, visible or pending. Removed keys stay
// in the seen set so polling does not bring them back.
func (e *Engine[T]) RemoveWhere(match func(T) bool) int {
	e.mu.Lock()
	n := 0
	keep := e.items[:0]
	for _, item := range e.items {
		if match(item) {
			n++
			continue
		}
		keep = append(keep, item)
	}
	e.items = keep
	keepPending := e.pending[:0]
	for _, item := range e.pending {
		if match(item) {
			e.seen[item.Key()] = struct{}{}
			n++
			continue
		}
		keepPending = append(keepPending, item)
	}
	e.pending = keepPending
	var observers []func()
	if n > 0 {
		observers = e.observersLocked()
	}
	e.mu.Unlock()
	notifyAll(observers)
	return n
}

// Observe registers fn to run after every change to the list or buffer.
func (e *Engine[T]) Observe(fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

func (e *Engine[T]) observersLocked() []func() {
	return slices.Clone(e.observers)
}

func notifyAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// StartPolling polls the head every interval until ctx is done or Stop is
// called. Failures are logged and polling continues. A running poller is
// replaced.
func (e *Engine[T]) StartPolling(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	e.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.pollMu.Lock()
	e.stopPoll = cancel
	e.pollDone = done
	e.pollMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = e.Poll(ctx)
			}
		}
	}()
}

// Stop cancels the poller and waits for it to exit, so no poll can touch the
// engine afterwards.
func (e *Engine[T]) Stop() {
	e.pollMu.Lock()
	cancel, done := e.stopPoll, e.pollDone
	e.stopPoll, e.pollDone = nil, nil
	e.pollMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
