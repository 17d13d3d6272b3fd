// ABOUTME: Follower and following list pagination with optional progressive reveal.
// ABOUTME: Deduplicates strictly by account id and prefetches relationship flags per page.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
)

// AccountPageFunc reads one page of an account list starting below maxID.
type AccountPageFunc func(ctx context.Context, maxID string, limit int) (mastodon.AccountPage, error)

// RelationshipLookup resolves relationship flags for a batch of accounts.
type RelationshipLookup interface {
	Lookup(ctx context.Context, ids []string) (map[string]models.Relationship, error)
}

// FollowersOf pages through the accounts following accountID.
func FollowersOf(c *mastodon.Client, accountID string) AccountPageFunc {
	return func(ctx context.Context, maxID string, limit int) (mastodon.AccountPage, error) {
		return c.Followers(ctx, accountID, maxID, limit)
	}
}

// FollowingOf pages through the accounts accountID follows.
func FollowingOf(c *mastodon.Client, accountID string) AccountPageFunc {
	return func(ctx context.Context, maxID string, limit int) (mastodon.AccountPage, error) {
		return c.Following(ctx, accountID, maxID, limit)
	}
}

// PagerOptions tunes an AccountPager.
type PagerOptions struct {
	PageSize  int
	Retries   int
	RetryWait time.Duration

	// RevealDelay spaces out inserts from one page. Zero inserts the page at once.
	RevealDelay time.Duration

	// OnInsert runs after each account becomes visible.
	OnInsert func(models.Account)

	Relationships RelationshipLookup
	Logger        *slog.Logger
}

// AccountPager accumulates a follower or following list.
type AccountPager struct {
	fetch AccountPageFunc
	opts  PagerOptions

	mu       sync.Mutex
	accounts []models.Account
	ids      map[string]struct{}
	next     string
	hasMore  bool
	loading  bool
}

// NewAccountPager creates a pager positioned before the first page.
func NewAccountPager(fetch AccountPageFunc, opts PagerOptions) *AccountPager {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Logger()
	}
	return &AccountPager{
		fetch:   fetch,
		opts:    opts,
		ids:     make(map[string]struct{}),
		hasMore: true,
	}
}

// FetchNext loads the next page and inserts accounts not already shown.
// Accounts are compared by id only; two accounts can share a display handle
// across servers.
func (p *AccountPager) FetchNext(ctx context.Context) (int, error) {
	p.mu.Lock()
	if !p.hasMore || p.loading {
		p.mu.Unlock()
		return 0, nil
	}
	p.loading = true
	maxID := p.next
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	}()

	page, err := retryRead(ctx, p.opts.Retries, p.opts.RetryWait, func() (mastodon.AccountPage, error) {
		return p.fetch(ctx, maxID, p.opts.PageSize)
	})
	if err != nil {
		p.opts.Logger.Warn("account list fetch failed", "max_id", maxID, "error", err)
		return 0, err
	}

	p.prefetchRelationships(ctx, page.Accounts)

	inserted := 0
	for _, acct := range page.Accounts {
		if inserted > 0 && p.opts.RevealDelay > 0 {
			if err := sleepCtx(ctx, p.opts.RevealDelay); err != nil {
				// The cursor stays put; the next fetch re-reads this page and
				// the id check skips what is already shown.
				return inserted, err
			}
		}
		if !p.insert(acct) {
			continue
		}
		inserted++
		if p.opts.OnInsert != nil {
			p.opts.OnInsert(acct)
		}
	}

	p.mu.Lock()
	p.next = page.Next
	if page.Next == "" || len(page.Accounts) == 0 {
		p.hasMore = false
	}
	p.mu.Unlock()
	return inserted, nil
}

// insert dedupes by account id, never by handle.
func (p *AccountPager) insert(acct models.Account) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.ids[acct.ID]; dup {
		return false
	}
	p.ids[acct.ID] = struct{}{}
	p.accounts = append(p.accounts, acct)
	return true
}

func (p *AccountPager) prefetchRelationships(ctx context.Context, accts []models.Account) {
	if p.opts.Relationships == nil || len(accts) == 0 {
		return
	}
	ids := make([]string, 0, len(accts))
	for _, a := range accts {
		ids = append(ids, a.ID)
	}
	if _, err := p.opts.Relationships.Lookup(ctx, ids); err != nil {
		p.opts.Logger.Warn("relationship prefetch failed", "count", len(ids), "error", err)
	}
}

// Accounts returns a copy of the inserted accounts in server order.
func (p *AccountPager) Accounts() []models.Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Account(nil), p.accounts...)
}

// FindAccount returns the listed account with id.
func (p *AccountPager) FindAccount(id string) (models.Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return models.Account{}, false
}

// UpdateAccount applies fn to the listed account with id.
func (p *AccountPager) UpdateAccount(id string, fn func(*models.Account)) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.accounts {
		if p.accounts[i].ID == id {
			fn(&p.accounts[i])
			return 1
		}
	}
	return 0
}

// HasMore reports whether another page may exist.
func (p *AccountPager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Reset starts the list over.
func (p *AccountPager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = nil
	p.ids = make(map[string]struct{})
	p.next = ""
	p.hasMore = true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
