// ABOUTME: Tests for thread assembly depth limits, request counts, and fallbacks.
// ABOUTME: The fake API serves a fixed reply graph and records every context fetch.
package thread

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/models"
)

// fakeThreadAPI serves a reply graph where replies[id] lists direct replies.
type fakeThreadAPI struct {
	mu       sync.Mutex
	replies  map[string][]string
	fetched  []string
	failFor  map[string]bool
	inFlight int
	peak     int
}

func (f *fakeThreadAPI) Status(ctx context.Context, id string) (*models.Post, error) {
	if id == "missing" {
		return nil, errors.New("not found")
	}
	return &models.Post{ID: id}, nil
}

func (f *fakeThreadAPI) StatusContext(ctx context.Context, id string) (*models.Context, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	fail := f.failFor[id]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if fail {
		return nil, errors.New("boom")
	}
	return &models.Context{Ancestors: []models.Post{{ID: "parent-of-" + id}}, Descendants: f.descendants(id)}, nil
}

// descendants walks the whole subtree under id, parents before children.
func (f *fakeThreadAPI) descendants(id string) []models.Post {
	var out []models.Post
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range f.replies[cur] {
			out = append(out, models.Post{ID: child, InReplyToID: cur})
			queue = append(queue, child)
		}
	}
	return out
}

func (f *fakeThreadAPI) fetchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func newAssembler(api API, opts ...Option) *Assembler {
	return NewAssembler(api, append([]Option{WithLogger(logging.Discard())}, opts...)...)
}

func TestBuildTwoChildrenTwoGrandchildren(t *testing.T) {
	api := &fakeThreadAPI{replies: map[string][]string{
		"root": {"c1", "c2"},
		"c1":   {"g1"},
		"c2":   {"g2"},
		"g1":   {"deep1"},
	}}
	a := newAssembler(api)

	res, err := a.Build(context.Background(), "root")
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if got := fmt.Sprint(Count(res.Root)); got != "[1 2 2]" {
		t.Errorf("nodes per depth = %s, want [1 2 2]", got)
	}
	for _, c := range res.Root.Children {
		if c.Depth != 1 || len(c.Children) != 1 {
			t.Errorf("child %s: depth %d, %d children", c.Post.ID, c.Depth, len(c.Children))
		}
		for _, g := range c.Children {
			if g.Depth != 2 || len(g.Children) != 0 {
				t.Errorf("grandchild %s: depth %d, %d children", g.Post.ID, g.Depth, len(g.Children))
			}
		}
	}

	for _, id := range api.fetchedIDs() {
		if strings.HasPrefix(id, "g") {
			t.Errorf("fetched context for depth-2 node %s", id)
		}
	}
	if res.Requests != 4 {
		t.Errorf("expected 4 requests (status, root, c1, c2), got %d", res.Requests)
	}
	if len(res.Ancestors) != 1 || res.Ancestors[0].ID != "parent-of-root" {
		t.Errorf("unexpected ancestors %+v", res.Ancestors)
	}
}

func TestBuildBatched(t *testing.T) {
	api := &fakeThreadAPI{replies: map[string][]string{
		"root": {"c1", "c2"},
		"c1":   {"g1"},
		"c2":   {"g2"},
	}}
	a := newAssembler(api, WithBatched(true))

	res, err := a.Build(context.Background(), "root")
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if got := fmt.Sprint(Count(res.Root)); got != "[1 2 2]" {
		t.Errorf("nodes per depth = %s, want [1 2 2]", got)
	}
	if res.Requests != 2 {
		t.Errorf("batched mode should make 2 requests, got %d", res.Requests)
	}
}

func TestBuildFallsBackOnReplyFailure(t *testing.T) {
	api := &fakeThreadAPI{
		replies: map[string][]string{"root": {"c1"}, "c1": {"g1"}},
		failFor: map[string]bool{"c1": true},
	}
	a := newAssembler(api)

	res, err := a.Build(context.Background(), "root")
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	c1 := res.Root.Children[0]
	if len(c1.Children) != 1 || c1.Children[0].Post.ID != "g1" {
		t.Errorf("expected g1 from the root context, got %+v", c1.Children)
	}
}

func TestBuildRootFailure(t *testing.T) {
	api := &fakeThreadAPI{failFor: map[string]bool{"root": true}}
	a := newAssembler(api)

	if _, err := a.Build(context.Background(), "root"); err == nil {
		t.Error("expected error when the root context fails")
	}
	if _, err := a.Build(context.Background(), "missing"); err == nil {
		t.Error("expected error when the root post is missing")
	}
	if _, err := a.Build(context.Background(), ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestBuildBoundsFanOut(t *testing.T) {
	replies := map[string][]string{}
	for i := 0; i < 12; i++ {
		replies["root"] = append(replies["root"], fmt.Sprintf("c%d", i))
	}
	api := &fakeThreadAPI{replies: replies}
	a := newAssembler(api, WithConcurrency(3))

	res, err := a.Build(context.Background(), "root")
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if res.Requests != 14 {
		t.Errorf("expected 14 requests, got %d", res.Requests)
	}
	if api.peak > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", api.peak)
	}
}

func TestWalkRefusesDeepNodes(t *testing.T) {
	deep := &models.ThreadNode{Post: models.Post{ID: "d"}, Depth: 3}
	grand := &models.ThreadNode{Post: models.Post{ID: "g"}, Depth: 2, Children: []*models.ThreadNode{deep}}
	child := &models.ThreadNode{Post: models.Post{ID: "c"}, Depth: 1, Children: []*models.ThreadNode{grand}}
	root := &models.ThreadNode{Post: models.Post{ID: "r"}, Children: []*models.ThreadNode{child}}

	var visited []string
	Walk(root, func(n *models.ThreadNode, _ int) { visited = append(visited, n.Post.ID) })
	if got := strings.Join(visited, ","); got != "r,c,g" {
		t.Errorf("visited %s, want r,c,g", got)
	}

	var buf bytes.Buffer
	if err := Render(&buf, &Result{Root: root}); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if strings.Contains(buf.String(), "[d]") {
		t.Errorf("render went past depth 2:\n%s", buf.String())
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Errorf("expected 3 lines, got %d:\n%s", lines, buf.String())
	}
}

func TestWalkIgnoresStoredDepth(t *testing.T) {
	// Every node claims depth 0; the traversal must still stop at level 2.
	deep := &models.ThreadNode{Post: models.Post{ID: "d"}}
	grand := &models.ThreadNode{Post: models.Post{ID: "g"}, Children: []*models.ThreadNode{deep}}
	child := &models.ThreadNode{Post: models.Post{ID: "c"}, Children: []*models.ThreadNode{grand}}
	root := &models.ThreadNode{Post: models.Post{ID: "r"}, Children: []*models.ThreadNode{child}}

	var visited []string
	Walk(root, func(n *models.ThreadNode, depth int) {
		visited = append(visited, fmt.Sprintf("%s@%d", n.Post.ID, depth))
	})
	if got := strings.Join(visited, ","); got != "r@0,c@1,g@2" {
		t.Errorf("visited %s, want r@0,c@1,g@2", got)
	}
	if got := fmt.Sprint(Count(root)); got != "[1 1 1]" {
		t.Errorf("Count = %s, want [1 1 1]", got)
	}

	var buf bytes.Buffer
	if err := Render(&buf, &Result{Root: root}); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if strings.Contains(buf.String(), "[d]") {
		t.Errorf("render went past depth 2:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "  └ [g]") {
		t.Errorf("grandchild should be indented by traversal depth:\n%s", buf.String())
	}
}
