// ABOUTME: Page sources binding feed engines to timeline and notification endpoints.
// ABOUTME: Also maps user-facing timeline names to sources.
package feed

import (
	"context"
	"strings"

	"github.com/2389-research/murmur/internal/mastodon"
	"github.com/2389-research/murmur/internal/models"
)

// Timeline names accepted by the CLI and MCP tools.
const (
	TimelineHome   = "home"
	TimelineLocal  = "local"
	TimelinePublic = "public"
)

// Timelines lists the post feeds in display order.
var Timelines = []string{TimelineHome, TimelineLocal, TimelinePublic}

// HomeSource reads the home timeline.
func HomeSource(c *mastodon.Client) Source[models.Post] {
	return c.HomeTimeline
}

// LocalSource reads public posts from the user's own server.
func LocalSource(c *mastodon.Client) Source[models.Post] {
	return func(ctx context.Context, q mastodon.PageQuery) ([]models.Post, error) {
		return c.PublicTimeline(ctx, q, true)
	}
}

// PublicSource reads the federated public timeline.
func PublicSource(c *mastodon.Client) Source[models.Post] {
	return func(ctx context.Context, q mastodon.PageQuery) ([]models.Post, error) {
		return c.PublicTimeline(ctx, q, false)
	}
}

// AccountSource reads posts written by one account.
func AccountSource(c *mastodon.Client, accountID string) Source[models.Post] {
	return func(ctx context.Context, q mastodon.PageQuery) ([]models.Post, error) {
		return c.AccountStatuses(ctx, accountID, q)
	}
}

// NotificationSource reads the notification feed.
func NotificationSource(c *mastodon.Client) Source[models.Notification] {
	return c.Notifications
}

// TimelineSource returns the source for a named timeline.
func TimelineSource(c *mastodon.Client, name string) (Source[models.Post], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TimelineHome:
		return HomeSource(c), nil
	case TimelineLocal:
		return LocalSource(c), nil
	case TimelinePublic, "federated":
		return PublicSource(c), nil
	default:
		return nil, models.Validationf("unknown timeline %q (want home, local, or public)", name)
	}
}
