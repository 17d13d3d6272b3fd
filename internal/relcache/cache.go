// ABOUTME: Session-scoped relationship cache shared by every screen that shows follow state.
// ABOUTME: Entries expire after a TTL; follow mutations write through or invalidate explicitly.
package relcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389-research/murmur/internal/models"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultBatchSize   = 40
	DefaultConcurrency = 4
)

// Fetcher resolves relationships for a batch of account ids.
type Fetcher func(ctx context.Context, ids ...string) ([]models.Relationship, error)

type entry struct {
	rel     models.Relationship
	expires time.Time
}

// Cache holds relationship flags keyed by account id.
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]entry
	fetch       Fetcher
	ttl         time.Duration
	batchSize   int
	concurrency int
	now         func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long an entry stays fresh.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithConcurrency bounds parallel batch lookups.
func WithConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBatchSize sets how many ids go in one lookup request.
func WithBatchSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// New creates an empty cache backed by fetch.
func New(fetch Fetcher, opts ...Option) *Cache {
	c := &Cache{
		entries:     make(map[string]entry),
		fetch:       fetch,
		ttl:         DefaultTTL,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a fresh cached relationship.
func (c *Cache) Get(id string) (models.Relationship, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || c.now().After(e.expires) {
		return models.Relationship{}, false
	}
	return e.rel, true
}

// Set stores rel as the authoritative state for rel.ID.
func (c *Cache) Set(rel models.Relationship) {
	if rel.ID == "" {
		return
	}
	c.mu.Lock()
	c.entries[rel.ID] = entry{rel: rel, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Update applies fn to the cached entry for id, starting from the zero
// relationship when nothing is cached. It returns the previous value.
func (c *Cache) Update(id string, fn func(*models.Relationship)) (prev models.Relationship, had bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if ok && c.now().After(e.expires) {
		ok = false
	}
	prev, had = e.rel, ok
	next := models.Relationship{ID: id}
	if ok {
		next = e.rel
	}
	fn(&next)
	c.entries[id] = entry{rel: next, expires: c.now().Add(c.ttl)}
	return prev, had
}

// Invalidate drops the entry for id.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Clear drops every entry. Called on logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Lookup returns relationships for ids, fetching the misses in batches with
// bounded concurrency. Partial results are cached even when a batch fails.
func (c *Cache) Lookup(ctx context.Context, ids []string) (map[string]models.Relationship, error) {
	out := make(map[string]models.Relationship, len(ids))
	var misses []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		if rel, ok := c.Get(id); ok {
			out[id] = rel
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 || c.fetch == nil {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(misses); start += c.batchSize {
		end := min(start+c.batchSize, len(misses))
		batch := misses[start:end]
		g.Go(func() error {
			rels, err := c.fetch(gctx, batch...)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, rel := range rels {
				c.Set(rel)
				out[rel.ID] = rel
			}
			return nil
		})
	}
	err := g.Wait()
	return out, err
}
