// ABOUTME: Timeline and notification reads plus instance metadata.
// ABOUTME: All timeline reads are newest-first and bounded by PageQuery cursors.
package mastodon

import (
	"context"

	"github.com/2389-research/murmur/internal/models"
)

// Instance is the subset of server metadata used to validate a server name.
type Instance struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"short_description"`
	Version     string `json:"version"`
}

// Instance fetches server metadata. It needs no token.
func (c *Client) Instance(ctx context.Context) (*Instance, error) {
	var inst Instance
	if _, err := c.get(ctx, "/api/v1/instance", nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// HomeTimeline fetches posts from followed accounts.
func (c *Client) HomeTimeline(ctx context.Context, q PageQuery) ([]models.Post, error) {
	var posts []models.Post
	if _, err := c.get(ctx, "/api/v1/timelines/home", q.values(), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// PublicTimeline fetches public posts; local restricts to this server's accounts.
func (c *Client) PublicTimeline(ctx context.Context, q PageQuery, local bool) ([]models.Post, error) {
	v := q.values()
	if local {
		v.Set("local", "true")
	}
	var posts []models.Post
	if _, err := c.get(ctx, "/api/v1/timelines/public", v, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Notifications fetches the notification feed.
func (c *Client) Notifications(ctx context.Context, q PageQuery) ([]models.Notification, error) {
	var notes []models.Notification
	if _, err := c.get(ctx, "/api/v1/notifications", q.values(), &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// ClearNotifications dismisses every notification.
func (c *Client) ClearNotifications(ctx context.Context) error {
	return c.postForm(ctx, "/api/v1/notifications/clear", nil, nil)
}
