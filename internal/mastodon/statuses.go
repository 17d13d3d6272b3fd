// ABOUTME: Status reads and writes: fetch, context, reactions, compose, delete, media, polls.
// ABOUTME: Create-post carries an Idempotency-Key so a resend cannot double-post.
package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/2389-research/murmur/internal/models"
)

// Status fetches one post.
func (c *Client) Status(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if _, err := c.get(ctx, "/api/v1/statuses/"+url.PathEscape(id), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// StatusContext fetches the ancestors and descendants of a post.
func (c *Client) StatusContext(ctx context.Context, id string) (*models.Context, error) {
	var tc models.Context
	if _, err := c.get(ctx, "/api/v1/statuses/"+url.PathEscape(id)+"/context", nil, &tc); err != nil {
		return nil, err
	}
	return &tc, nil
}

// Favourite likes a post.
func (c *Client) Favourite(ctx context.Context, id string) (*models.Post, error) {
	return c.statusAction(ctx, id, "favourite")
}

// Unfavourite removes a like.
func (c *Client) Unfavourite(ctx context.Context, id string) (*models.Post, error) {
	return c.statusAction(ctx, id, "unfavourite")
}

// Reblog boosts a post.
func (c *Client) Reblog(ctx context.Context, id string) (*models.Post, error) {
	return c.statusAction(ctx, id, "reblog")
}

// Unreblog removes a boost.
func (c *Client) Unreblog(ctx context.Context, id string) (*models.Post, error) {
	return c.statusAction(ctx, id, "unreblog")
}

func (c *Client) statusAction(ctx context.Context, id, action string) (*models.Post, error) {
	var post models.Post
	if err := c.postForm(ctx, "/api/v1/statuses/"+url.PathEscape(id)+"/"+action, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreateStatus publishes a draft. idempotencyKey should be stable for the
// lifetime of one draft.
func (c *Client) CreateStatus(ctx context.Context, draft models.Draft, idempotencyKey string) (*models.Post, error) {
	form := url.Values{}
	form.Set("status", draft.Content)
	if draft.InReplyToID != "" {
		form.Set("in_reply_to_id", draft.InReplyToID)
	}
	for _, id := range draft.MediaIDs {
		form.Add("media_ids[]", id)
	}
	if draft.Sensitive {
		form.Set("sensitive", "true")
	}
	if draft.SpoilerText != "" {
		form.Set("spoiler_text", draft.SpoilerText)
	}
	if draft.Visibility != "" {
		form.Set("visibility", string(draft.Visibility))
	}

	header := http.Header{}
	if idempotencyKey != "" {
		header.Set("Idempotency-Key", idempotencyKey)
	}

	var post models.Post
	_, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/api/v1/statuses",
		form:   form,
		header: header,
	}, &post)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// DeleteStatus deletes a post the current user wrote.
func (c *Client) DeleteStatus(ctx context.Context, id string) error {
	_, err := c.do(ctx, call{method: http.MethodDelete, path: "/api/v1/statuses/" + url.PathEscape(id)}, nil)
	return err
}

// UploadMedia uploads a file for later attachment to a post.
func (c *Client) UploadMedia(ctx context.Context, path, description string) (*models.MediaAttachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := attachFile(w, "file", path); err != nil {
		return nil, err
	}
	if description != "" {
		if err := w.WriteField("description", description); err != nil {
			return nil, fmt.Errorf("failed to encode description: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	var media models.MediaAttachment
	_, err := c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/api/v2/media",
		body:        &buf,
		contentType: w.FormDataContentType(),
	}, &media)
	if err != nil {
		return nil, err
	}
	return &media, nil
}

// Poll fetches the current state of a poll.
func (c *Client) Poll(ctx context.Context, id string) (*models.Poll, error) {
	var poll models.Poll
	if _, err := c.get(ctx, "/api/v1/polls/"+url.PathEscape(id), nil, &poll); err != nil {
		return nil, err
	}
	return &poll, nil
}

// VotePoll submits choices (option indexes) and returns the server's tallies.
func (c *Client) VotePoll(ctx context.Context, id string, choices []int) (*models.Poll, error) {
	form := url.Values{}
	for _, choice := range choices {
		form.Add("choices[]", strconv.Itoa(choice))
	}
	var poll models.Poll
	if err := c.postForm(ctx, "/api/v1/polls/"+url.PathEscape(id)+"/votes", form, &poll); err != nil {
		return nil, err
	}
	return &poll, nil
}
