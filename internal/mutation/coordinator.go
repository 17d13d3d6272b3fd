// ABOUTME: MutationCoordinator applies optimistic toggles, poll votes, deletes, and posts.
// ABOUTME: One mutation per (target, kind) may be in flight; failures restore the exact prior state.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/relcache"
)

// API is the subset of the remote client mutations need.
type API interface {
	Status(ctx context.Context, id string) (*models.Post, error)
	Favourite(ctx context.Context, id string) (*models.Post, error)
	Unfavourite(ctx context.Context, id string) (*models.Post, error)
	Reblog(ctx context.Context, id string) (*models.Post, error)
	Unreblog(ctx context.Context, id string) (*models.Post, error)
	Follow(ctx context.Context, id string) (*models.Relationship, error)
	Unfollow(ctx context.Context, id string) (*models.Relationship, error)
	VotePoll(ctx context.Context, id string, choices []int) (*models.Poll, error)
	DeleteStatus(ctx context.Context, id string) error
	CreateStatus(ctx context.Context, draft models.Draft, idempotencyKey string) (*models.Post, error)
}

var _ API = (*mastodon.Client)(nil)

// View is a locally held list of posts that mutations keep current.
type View interface {
	FindPost(id string) (models.Post, bool)
	UpdatePost(id string, fn func(*models.Post)) int
	RemovePost(id string) int
}

// AccountView holds accounts whose follower counts track follow toggles.
type AccountView interface {
	FindAccount(id string) (models.Account, bool)
	UpdateAccount(id string, fn func(*models.Account)) int
}

type inflightKey struct {
	target string
	kind   models.MutationKind
}

// Coordinator routes user actions through optimistic local updates.
type Coordinator struct {
	api     API
	rels    *relcache.Cache
	userID  func() string
	onError func(error)
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	views    []View
	accounts []AccountView
	inflight map[inflightKey]models.MutationIntent
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRelationships sets the cache follow toggles read and write.
func WithRelationships(c *relcache.Cache) Option {
	return func(co *Coordinator) {
		co.rels = c
	}
}

// WithUserID supplies the logged-in account id for author checks.
func WithUserID(fn func() string) Option {
	return func(co *Coordinator) {
		co.userID = fn
	}
}

// WithErrorHandler registers the user-visible alert for failed actions.
func WithErrorHandler(fn func(error)) Option {
	return func(co *Coordinator) {
		co.onError = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// NewCoordinator creates a Coordinator. Views are added with Attach.
func NewCoordinator(api API, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:      api,
		userID:   func() string { return "" },
		logger:   logging.Logger(),
		now:      time.Now,
		inflight: make(map[inflightKey]models.MutationIntent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach registers a view to receive optimistic updates. Views that also
// hold accounts receive follower count updates.
func (c *Coordinator) Attach(v View) {
	c.mu.Lock()
	c.views = append(c.views, v)
	if av, ok := v.(AccountView); ok {
		c.accounts = append(c.accounts, av)
	}
	c.mu.Unlock()
}

// AttachAccounts registers a list of accounts, such as a follower list, to
// receive follower count updates.
func (c *Coordinator) AttachAccounts(v AccountView) {
	c.mu.Lock()
	c.accounts = append(c.accounts, v)
	c.mu.Unlock()
}

// Detach stops updating v.
func (c *Coordinator) Detach(v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.views {
		if existing == v {
			c.views = append(c.views[:i], c.views[i+1:]...)
			break
		}
	}
	if av, ok := v.(AccountView); ok {
		c.detachAccountsLocked(av)
	}
}

// DetachAccounts stops updating v.
func (c *Coordinator) DetachAccounts(v AccountView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachAccountsLocked(v)
}

func (c *Coordinator) detachAccountsLocked(v AccountView) {
	for i, existing := range c.accounts {
		if existing == v {
			c.accounts = append(c.accounts[:i], c.accounts[i+1:]...)
			return
		}
	}
}

// InFlight reports whether a mutation of kind is pending for target.
func (c *Coordinator) InFlight(target string, kind models.MutationKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[inflightKey{target, kind}]
	return ok
}

func (c *Coordinator) begin(intent models.MutationIntent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := inflightKey{intent.TargetID, intent.Kind}
	if _, busy := c.inflight[key]; busy {
		return fmt.Errorf("%s %s: %w", intent.Kind, intent.TargetID, models.ErrMutationInFlight)
	}
	intent.CreatedAt = c.now()
	c.inflight[key] = intent
	return nil
}

func (c *Coordinator) end(target string, kind models.MutationKind) {
	c.mu.Lock()
	delete(c.inflight, inflightKey{target, kind})
	c.mu.Unlock()
}

func (c *Coordinator) snapshotViews() []View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]View(nil), c.views...)
}

func (c *Coordinator) snapshotAccounts() []AccountView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AccountView(nil), c.accounts...)
}

// followersCount returns the followers count of the first held copy of id.
func (c *Coordinator) followersCount(id string) (int, bool) {
	for _, v := range c.snapshotAccounts() {
		if a, ok := v.FindAccount(id); ok {
			return a.FollowersCount, true
		}
	}
	return 0, false
}

func (c *Coordinator) setFollowersCount(id string, n int) {
	for _, v := range c.snapshotAccounts() {
		v.UpdateAccount(id, func(a *models.Account) { a.FollowersCount = n })
	}
}

func (c *Coordinator) update(id string, fn func(*models.Post)) {
	for _, v := range c.snapshotViews() {
		v.UpdatePost(id, fn)
	}
}

// resolve finds a post in the attached views, falling back to the server.
func (c *Coordinator) resolve(ctx context.Context, id string) (models.Post, error) {
	if strings.TrimSpace(id) == "" {
		return models.Post{}, models.Validationf("post id is required")
	}
	for _, v := range c.snapshotViews() {
		if p, ok := v.FindPost(id); ok {
			return p, nil
		}
	}
	p, err := c.api.Status(ctx, id)
	if err != nil {
		var apiErr *mastodon.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return models.Post{}, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
		}
		return models.Post{}, err
	}
	if p.ID != id && p.Reblog != nil && p.Reblog.ID == id {
		return *p.Reblog, nil
	}
	return *p, nil
}

func (c *Coordinator) report(kind models.MutationKind, target string, err error) error {
	err = fmt.Errorf("%s %s: %w", kind, target, err)
	c.logger.Warn("mutation failed", "kind", kind, "target", target, "error", err)
	if c.onError != nil {
		c.onError(err)
	}
	return err
}

// toggle describes one boolean flag with a counter.
type toggle struct {
	kind models.MutationKind
	get  func(*models.Post) (bool, int)
	set  func(*models.Post, bool, int)
	on   func(ctx context.Context, id string) (*models.Post, error)
	off  func(ctx context.Context, id string) (*models.Post, error)
}

// ToggleFavourite likes or unlikes a post.
func (c *Coordinator) ToggleFavourite(ctx context.Context, postID string) (models.Post, error) {
	return c.runToggle(ctx, postID, toggle{
		kind: models.KindFavourite,
		get:  func(p *models.Post) (bool, int) { return p.Favourited, p.FavouritesCount },
		set:  func(p *models.Post, v bool, n int) { p.Favourited, p.FavouritesCount = v, n },
		on:   c.api.Favourite,
		off:  c.api.Unfavourite,
	})
}

// ToggleReblog boosts or unboosts a post.
func (c *Coordinator) ToggleReblog(ctx context.Context, postID string) (models.Post, error) {
	return c.runToggle(ctx, postID, toggle{
		kind: models.KindReblog,
		get:  func(p *models.Post) (bool, int) { return p.Reblogged, p.ReblogsCount },
		set:  func(p *models.Post, v bool, n int) { p.Reblogged, p.ReblogsCount = v, n },
		on:   c.api.Reblog,
		off:  c.api.Unreblog,
	})
}

func (c *Coordinator) runToggle(ctx context.Context, postID string, t toggle) (models.Post, error) {
	post, err := c.resolve(ctx, postID)
	if err != nil {
		return models.Post{}, err
	}
	target := *post.Target()

	prior, count := t.get(&target)
	intent := models.MutationIntent{
		TargetID:   target.ID,
		Kind:       t.kind,
		PriorValue: prior,
		PriorCount: count,
		Delta:      1,
	}
	if prior {
		intent.Delta = -1
	}
	if err := c.begin(intent); err != nil {
		return target, err
	}
	defer c.end(target.ID, t.kind)

	apply := func(p *models.Post) { t.set(p, !intent.PriorValue, intent.PriorCount+intent.Delta) }
	apply(&target)
	c.update(target.ID, apply)

	call := t.on
	if intent.PriorValue {
		call = t.off
	}
	if _, err := call(ctx, target.ID); err != nil {
		restore := func(p *models.Post) { t.set(p, intent.PriorValue, intent.PriorCount) }
		restore(&target)
		c.update(target.ID, restore)
		return target, c.report(t.kind, target.ID, err)
	}
	return target, nil
}

// ToggleFollow follows or unfollows an account using the relationship cache
// as the optimistic state. A pending follow request counts as following.
// Held copies of the account move their followers count by one and return
// to the prior count on failure.
func (c *Coordinator) ToggleFollow(ctx context.Context, accountID string) (models.Relationship, error) {
	if strings.TrimSpace(accountID) == "" {
		return models.Relationship{}, models.Validationf("account id is required")
	}
	if c.rels == nil {
		return models.Relationship{}, models.Validationf("relationship cache not configured")
	}

	current, ok := c.rels.Get(accountID)
	if !ok {
		rels, err := c.rels.Lookup(ctx, []string{accountID})
		if err != nil {
			return models.Relationship{}, err
		}
		current = rels[accountID]
		current.ID = accountID
	}

	prior := current.Following || current.Requested
	count, known := c.followersCount(accountID)
	// Cancelling a pending request leaves the count alone.
	intent := models.MutationIntent{
		TargetID:   accountID,
		Kind:       models.KindFollow,
		PriorValue: prior,
		PriorCount: count,
		Delta:      boolInt(!prior) - boolInt(current.Following),
	}
	if err := c.begin(intent); err != nil {
		return current, err
	}
	defer c.end(accountID, models.KindFollow)

	snapshot := current
	c.rels.Update(accountID, func(r *models.Relationship) {
		r.Following = !prior
		r.Requested = false
	})
	if known {
		c.setFollowersCount(accountID, intent.PriorCount+intent.Delta)
	}

	call := c.api.Follow
	if prior {
		call = c.api.Unfollow
	}
	rel, err := call(ctx, accountID)
	if err != nil {
		c.rels.Set(snapshot)
		if known {
			c.setFollowersCount(accountID, intent.PriorCount)
		}
		return snapshot, c.report(models.KindFollow, accountID, err)
	}
	if rel != nil {
		c.rels.Set(*rel)
		// A locked account answers with a request, not a follow.
		if known {
			c.setFollowersCount(accountID, intent.PriorCount+boolInt(rel.Following)-boolInt(current.Following))
		}
		return *rel, nil
	}
	result, _ := c.rels.Get(accountID)
	return result, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// VotePoll submits choices for the poll on postID. The local poll shows the
// vote immediately and is replaced by the server's tallies on success.
func (c *Coordinator) VotePoll(ctx context.Context, postID string, choices []int) (*models.Poll, error) {
	post, err := c.resolve(ctx, postID)
	if err != nil {
		return nil, err
	}
	target := post.Target()
	if err := validateVote(target.Poll, choices, c.now()); err != nil {
		return nil, err
	}

	intent := models.MutationIntent{TargetID: target.ID, Kind: models.KindVote, Delta: len(choices)}
	if err := c.begin(intent); err != nil {
		return nil, err
	}
	defer c.end(target.ID, models.KindVote)

	snapshot := target.Poll.Clone()
	optimistic := target.Poll.Clone()
	for _, choice := range choices {
		optimistic.Options[choice].VotesCount++
	}
	optimistic.VotesCount += len(choices)
	if optimistic.VotersCount != nil {
		*optimistic.VotersCount++
	}
	optimistic.Voted = true
	optimistic.OwnVotes = append([]int(nil), choices...)
	c.update(target.ID, func(p *models.Post) { p.Poll = optimistic.Clone() })

	server, err := c.api.VotePoll(ctx, snapshot.ID, choices)
	if err != nil {
		c.update(target.ID, func(p *models.Post) { p.Poll = snapshot.Clone() })
		return snapshot, c.report(models.KindVote, target.ID, err)
	}
	c.update(target.ID, func(p *models.Post) { p.Poll = server.Clone() })
	return server, nil
}

func validateVote(poll *models.Poll, choices []int, now time.Time) error {
	if poll == nil {
		return models.Validationf("post has no poll")
	}
	if len(choices) == 0 {
		return models.Validationf("select at least one option")
	}
	if poll.Expired || (poll.ExpiresAt != nil && now.After(*poll.ExpiresAt)) {
		return models.Validationf("poll has ended")
	}
	if poll.Voted {
		return models.Validationf("already voted in this poll")
	}
	if !poll.Multiple && len(choices) > 1 {
		return models.Validationf("poll allows a single choice")
	}
	picked := make(map[int]struct{}, len(choices))
	for _, choice := range choices {
		if choice < 0 || choice >= len(poll.Options) {
			return models.Validationf("option %d does not exist", choice)
		}
		if _, dup := picked[choice]; dup {
			return models.Validationf("option %d selected twice", choice)
		}
		picked[choice] = struct{}{}
	}
	return nil
}

// Delete removes a post the current user wrote. The author check only
// spares a doomed request; the server decides.
func (c *Coordinator) Delete(ctx context.Context, postID string) error {
	post, err := c.resolve(ctx, postID)
	if err != nil {
		return err
	}
	uid := c.userID()
	if uid == "" {
		return models.ErrNotAuthenticated
	}
	if post.Account.ID != uid {
		return fmt.Errorf("delete %s: %w", post.ID, models.ErrNotAuthor)
	}

	if err := c.begin(models.MutationIntent{TargetID: post.ID, Kind: models.KindDelete}); err != nil {
		return err
	}
	defer c.end(post.ID, models.KindDelete)

	if err := c.api.DeleteStatus(ctx, post.ID); err != nil {
		return c.report(models.KindDelete, post.ID, err)
	}
	for _, v := range c.snapshotViews() {
		v.RemovePost(post.ID)
	}
	c.logger.Info("post deleted", "id", post.ID)
	return nil
}

// NewIdempotencyKey returns a key to reuse for every submission of one draft.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// CreatePost publishes draft once. A blank key gets a fresh one; pass the
// same key when resubmitting the same draft so the server can drop repeats.
func (c *Coordinator) CreatePost(ctx context.Context, draft models.Draft, idempotencyKey string) (*models.Post, error) {
	if strings.TrimSpace(draft.Content) == "" && len(draft.MediaIDs) == 0 {
		return nil, models.Validationf("post content is empty")
	}
	if draft.Visibility != "" && !draft.Visibility.Valid() {
		return nil, models.Validationf("unknown visibility %q", draft.Visibility)
	}
	if idempotencyKey == "" {
		idempotencyKey = NewIdempotencyKey()
	}

	post, err := c.api.CreateStatus(ctx, draft, idempotencyKey)
	if err != nil {
		return nil, c.report("create", "draft", err)
	}
	return post, nil
}
