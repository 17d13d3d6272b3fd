// ABOUTME: Tests for follower/following pagination, id-based dedupe, and progressive reveal.
// ABOUTME: Relationship prefetch failures must not fail the page.
package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
)

type fakeLookup struct {
	calls [][]string
	err   error
}

func (f *fakeLookup) Lookup(ctx context.Context, ids []string) (map[string]models.Relationship, error) {
	f.calls = append(f.calls, append([]string(nil), ids...))
	return nil, f.err
}

func pagedAccounts(pages map[string]mastodon.AccountPage) AccountPageFunc {
	return func(ctx context.Context, maxID string, limit int) (mastodon.AccountPage, error) {
		page, ok := pages[maxID]
		if !ok {
			return mastodon.AccountPage{}, fmt.Errorf("unexpected max_id %q", maxID)
		}
		return page, nil
	}
}

func accountIDs(accts []models.Account) string {
	out := make([]string, len(accts))
	for i, a := range accts {
		out[i] = a.ID
	}
	return fmt.Sprint(out)
}

func TestAccountPagerFollowsNextToken(t *testing.T) {
	lookup := &fakeLookup{}
	p := NewAccountPager(pagedAccounts(map[string]mastodon.AccountPage{
		"":  {Accounts: []models.Account{{ID: "9"}, {ID: "8"}}, Next: "8"},
		"8": {Accounts: []models.Account{{ID: "7"}}},
	}), PagerOptions{Relationships: lookup, Logger: logging.Discard()})

	ctx := context.Background()
	if n, err := p.FetchNext(ctx); err != nil || n != 2 {
		t.Fatalf("first page = %d, %v", n, err)
	}
	if !p.HasMore() {
		t.Error("expected more pages")
	}
	if n, err := p.FetchNext(ctx); err != nil || n != 1 {
		t.Fatalf("second page = %d, %v", n, err)
	}
	if p.HasMore() {
		t.Error("a page without a next link ends the list")
	}
	if got := accountIDs(p.Accounts()); got != "[9 8 7]" {
		t.Errorf("accounts = %s", got)
	}
	if len(lookup.calls) != 2 || fmt.Sprint(lookup.calls[0]) != "[9 8]" {
		t.Errorf("unexpected prefetch calls %v", lookup.calls)
	}
}

func TestAccountPagerDedupesByID(t *testing.T) {
	// Same handle on two servers, plus a repeated id.
	p := NewAccountPager(pagedAccounts(map[string]mastodon.AccountPage{
		"": {Accounts: []models.Account{
			{ID: "1", Acct: "sam"},
			{ID: "2", Acct: "sam"},
			{ID: "1", Acct: "sam"},
		}},
	}), PagerOptions{Logger: logging.Discard()})

	n, err := p.FetchNext(context.Background())
	if err != nil {
		t.Fatalf("FetchNext error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 inserted, got %d", n)
	}
	if got := accountIDs(p.Accounts()); got != "[1 2]" {
		t.Errorf("accounts = %s", got)
	}
}

func TestAccountPagerProgressiveReveal(t *testing.T) {
	var inserted []string
	var stamps []time.Time
	p := NewAccountPager(pagedAccounts(map[string]mastodon.AccountPage{
		"": {Accounts: []models.Account{{ID: "a"}, {ID: "b"}, {ID: "c"}}},
	}), PagerOptions{
		RevealDelay: 10 * time.Millisecond,
		OnInsert: func(a models.Account) {
			inserted = append(inserted, a.ID)
			stamps = append(stamps, time.Now())
		},
		Logger: logging.Discard(),
	})

	if _, err := p.FetchNext(context.Background()); err != nil {
		t.Fatalf("FetchNext error: %v", err)
	}
	if fmt.Sprint(inserted) != "[a b c]" {
		t.Fatalf("inserted = %v", inserted)
	}
	if gap := stamps[2].Sub(stamps[0]); gap < 20*time.Millisecond {
		t.Errorf("inserts were not spaced out: %v", gap)
	}
}

func TestAccountPagerCancelledRevealResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewAccountPager(pagedAccounts(map[string]mastodon.AccountPage{
		"": {Accounts: []models.Account{{ID: "a"}, {ID: "b"}}, Next: "b"},
		"b": {},
	}), PagerOptions{
		RevealDelay: time.Hour,
		OnInsert:    func(models.Account) { cancel() },
		Logger:      logging.Discard(),
	})

	n, err := p.FetchNext(ctx)
	if !errors.Is(err, context.Canceled) || n != 1 {
		t.Fatalf("expected cancellation after 1 insert, got %d %v", n, err)
	}

	p.opts.RevealDelay = 0
	p.opts.OnInsert = nil
	n, err = p.FetchNext(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("resume = %d, %v", n, err)
	}
	if got := accountIDs(p.Accounts()); got != "[a b]" {
		t.Errorf("accounts = %s", got)
	}
}

func TestAccountPagerPrefetchFailureIsSilent(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("boom")}
	p := NewAccountPager(pagedAccounts(map[string]mastodon.AccountPage{
		"": {Accounts: []models.Account{{ID: "1"}}},
	}), PagerOptions{Relationships: lookup, Logger: logging.Discard()})

	if n, err := p.FetchNext(context.Background()); err != nil || n != 1 {
		t.Fatalf("FetchNext = %d, %v", n, err)
	}
}

func TestAccountPagerFailureKeepsCursor(t *testing.T) {
	calls := 0
	p := NewAccountPager(func(ctx context.Context, maxID string, limit int) (mastodon.AccountPage, error) {
		calls++
		if calls == 1 {
			return mastodon.AccountPage{}, fmt.Errorf("offline: %w", models.ErrNetwork)
		}
		return mastodon.AccountPage{Accounts: []models.Account{{ID: "1"}}}, nil
	}, PagerOptions{Logger: logging.Discard()})

	if _, err := p.FetchNext(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !p.HasMore() {
		t.Error("failure must not end the list")
	}
	if n, err := p.FetchNext(context.Background()); err != nil || n != 1 {
		t.Fatalf("retry = %d, %v", n, err)
	}
}
