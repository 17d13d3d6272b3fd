// ABOUTME: Local poll selection held until the user submits a vote.
// ABOUTME: Single-choice polls replace the selection; multiple-choice polls toggle.
package mutation

import (
	"context"
	"sort"

	"github.com/2389-research/murmur/internal/models"
)

// Ballot tracks unsent selections for the poll on one post. Nothing reaches
// the server until it is submitted.
type Ballot struct {
	postID   string
	multiple bool
	options  int
	picked   map[int]struct{}
}

// NewBallot starts an empty ballot for the poll on postID.
func NewBallot(postID string, poll *models.Poll) *Ballot {
	b := &Ballot{postID: postID, picked: make(map[int]struct{})}
	if poll != nil {
		b.multiple = poll.Multiple
		b.options = len(poll.Options)
	}
	return b
}

// PostID returns the post the poll belongs to.
func (b *Ballot) PostID() string {
	return b.postID
}

// Toggle selects or deselects option i. Out-of-range options are ignored.
func (b *Ballot) Toggle(i int) {
	if i < 0 || i >= b.options {
		return
	}
	if _, ok := b.picked[i]; ok {
		delete(b.picked, i)
		return
	}
	if !b.multiple {
		clear(b.picked)
	}
	b.picked[i] = struct{}{}
}

// Select picks option i and keeps earlier picks. Picking a second option on
// a single-choice poll is an error.
func (b *Ballot) Select(i int) error {
	if i < 0 || i >= b.options {
		return models.Validationf("option %d does not exist", i)
	}
	if _, ok := b.picked[i]; ok {
		return nil
	}
	if !b.multiple && len(b.picked) > 0 {
		return models.Validationf("poll allows a single choice")
	}
	b.picked[i] = struct{}{}
	return nil
}

// Selected reports whether option i is picked.
func (b *Ballot) Selected(i int) bool {
	_, ok := b.picked[i]
	return ok
}

// Choices returns the picked options in ascending order.
func (b *Ballot) Choices() []int {
	out := make([]int, 0, len(b.picked))
	for i := range b.picked {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Reset clears the selection.
func (b *Ballot) Reset() {
	clear(b.picked)
}

// OpenBallot starts an empty ballot for the poll on postID.
func (c *Coordinator) OpenBallot(ctx context.Context, postID string) (*Ballot, error) {
	post, err := c.resolve(ctx, postID)
	if err != nil {
		return nil, err
	}
	target := post.Target()
	if target.Poll == nil {
		return nil, models.Validationf("post has no poll")
	}
	return NewBallot(target.ID, target.Poll), nil
}

// SubmitBallot votes with the ballot's selections.
func (c *Coordinator) SubmitBallot(ctx context.Context, b *Ballot) (*models.Poll, error) {
	return c.VotePoll(ctx, b.PostID(), b.Choices())
}
