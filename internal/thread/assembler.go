// ABOUTME: ThreadAssembler builds a depth-capped reply tree for one post.
// ABOUTME: Breadth-first: each level's context fetches run in parallel under a concurrency limit.
package thread

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/models"
)

// MaxDepth is the deepest level kept: the root is 0, its replies 1, and
// replies to those 2. Nodes at MaxDepth are never expanded.
const MaxDepth = 2

const DefaultConcurrency = 4

// API is the subset of the remote client thread assembly needs.
type API interface {
	Status(ctx context.Context, id string) (*models.Post, error)
	StatusContext(ctx context.Context, id string) (*models.Context, error)
}

// Result is an assembled thread.
type Result struct {
	Root      *models.ThreadNode
	Ancestors []models.Post

	// Requests counts remote calls made to build the tree.
	Requests int
}

// Assembler fetches and assembles reply trees.
type Assembler struct {
	api         API
	concurrency int
	batched     bool
	logger      *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithConcurrency bounds parallel context fetches per level.
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithBatched builds the whole tree from the root's context alone, trading
// per-reply freshness for a fixed two requests.
func WithBatched(b bool) Option {
	return func(a *Assembler) {
		a.batched = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAssembler creates an Assembler.
func NewAssembler(api API, opts ...Option) *Assembler {
	a := &Assembler{
		api:         api,
		concurrency: DefaultConcurrency,
		logger:      logging.Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build assembles the thread rooted at postID. The default mode issues one
// status fetch, one context fetch for the root, and one context fetch per
// depth-1 reply, so cost grows with the number of direct replies.
func (a *Assembler) Build(ctx context.Context, postID string) (*Result, error) {
	if postID == "" {
		return nil, models.Validationf("post id is required")
	}
	var requests atomic.Int32

	requests.Add(1)
	post, err := a.api.Status(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch post %s: %w", postID, err)
	}
	requests.Add(1)
	rootCtx, err := a.api.StatusContext(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch context for %s: %w", post.ID, err)
	}

	root := &models.ThreadNode{Post: *post, Depth: 0}
	root.Children = repliesTo(post.ID, rootCtx.Descendants, 1)
	level := root.Children

	for depth := 1; depth < MaxDepth && len(level) > 0; depth++ {
		if a.batched {
			for _, node := range level {
				node.Children = repliesTo(node.Post.ID, rootCtx.Descendants, depth+1)
			}
		} else {
			a.expandLevel(ctx, level, depth, rootCtx.Descendants, &requests)
		}
		level = nextLevel(level)
	}

	return &Result{
		Root:      root,
		Ancestors: rootCtx.Ancestors,
		Requests:  int(requests.Load()),
	}, nil
}

// expandLevel fetches each node's own context in parallel. A failed fetch
// falls back to the replies already known from the root's context.
func (a *Assembler) expandLevel(ctx context.Context, level []*models.ThreadNode, depth int, known []models.Post, requests *atomic.Int32) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, node := range level {
		g.Go(func() error {
			requests.Add(1)
			tc, err := a.api.StatusContext(gctx, node.Post.ID)
			source := known
			if err != nil {
				a.logger.Warn("reply fetch failed; using root context", "post", node.Post.ID, "error", err)
			} else {
				source = tc.Descendants
			}
			node.Children = repliesTo(node.Post.ID, source, depth+1)
			return nil
		})
	}
	_ = g.Wait()
}

// repliesTo returns the direct replies to parentID, in server order.
func repliesTo(parentID string, posts []models.Post, depth int) []*models.ThreadNode {
	if depth > MaxDepth {
		return nil
	}
	var out []*models.ThreadNode
	seen := make(map[string]struct{})
	for _, p := range posts {
		if p.InReplyToID != parentID {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, &models.ThreadNode{Post: p, Depth: depth})
	}
	return out
}

func nextLevel(level []*models.ThreadNode) []*models.ThreadNode {
	var out []*models.ThreadNode
	for _, node := range level {
		out = append(out, node.Children...)
	}
	return out
}
