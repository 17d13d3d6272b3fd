// ABOUTME: Account reads and writes: profile, statuses, search, relationships, follows.
// ABOUTME: Follower and following lists return a next-page token parsed from the Link header.
package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/2389-research/murmur/internal/models"
)

// AccountPage is one page of a follower or following list.
type AccountPage struct {
	Accounts []models.Account
	Next     string // max_id for the following page; empty when exhausted
}

// VerifyCredentials returns the account the access token belongs to.
func (c *Client) VerifyCredentials(ctx context.Context) (*models.Account, error) {
	var acct models.Account
	if _, err := c.get(ctx, "/api/v1/accounts/verify_credentials", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Account fetches a profile by id.
func (c *Client) Account(ctx context.Context, id string) (*models.Account, error) {
	var acct models.Account
	if _, err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(id), nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// AccountStatuses fetches posts written by an account, newest first.
func (c *Client) AccountStatuses(ctx context.Context, id string, q PageQuery) ([]models.Post, error) {
	var posts []models.Post
	if _, err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(id)+"/statuses", q.values(), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// SearchAccounts looks up accounts matching query.
func (c *Client) SearchAccounts(ctx context.Context, query string, limit int) ([]models.Account, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var accts []models.Account
	if _, err := c.get(ctx, "/api/v1/accounts/search", q, &accts); err != nil {
		return nil, err
	}
	return accts, nil
}

// Relationships returns the current user's relationship to each account id.
func (c *Client) Relationships(ctx context.Context, ids ...string) ([]models.Relationship, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("id[]", id)
	}
	var rels []models.Relationship
	if _, err := c.get(ctx, "/api/v1/accounts/relationships", q, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// Followers lists accounts following id, starting below maxID.
func (c *Client) Followers(ctx context.Context, id, maxID string, limit int) (AccountPage, error) {
	return c.accountList(ctx, "/api/v1/accounts/"+url.PathEscape(id)+"/followers", maxID, limit)
}

// Following lists accounts id follows, starting below maxID.
func (c *Client) Following(ctx context.Context, id, maxID string, limit int) (AccountPage, error) {
	return c.accountList(ctx, "/api/v1/accounts/"+url.PathEscape(id)+"/following", maxID, limit)
}

func (c *Client) accountList(ctx context.Context, path, maxID string, limit int) (AccountPage, error) {
	var accts []models.Account
	header, err := c.get(ctx, path, PageQuery{MaxID: maxID, Limit: limit}.values(), &accts)
	if err != nil {
		return AccountPage{}, err
	}
	return AccountPage{Accounts: accts, Next: nextPageToken(header)}, nil
}

// Follow follows an account.
func (c *Client) Follow(ctx context.Context, id string) (*models.Relationship, error) {
	var rel models.Relationship
	if err := c.postForm(ctx, "/api/v1/accounts/"+url.PathEscape(id)+"/follow", nil, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// Unfollow unfollows an account.
func (c *Client) Unfollow(ctx context.Context, id string) (*models.Relationship, error) {
	var rel models.Relationship
	if err := c.postForm(ctx, "/api/v1/accounts/"+url.PathEscape(id)+"/unfollow", nil, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// UpdateCredentials edits the current user's profile.
func (c *Client) UpdateCredentials(ctx context.Context, upd models.ProfileUpdate) (*models.Account, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if upd.DisplayName != nil {
		if err := w.WriteField("display_name", *upd.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to encode display name: %w", err)
		}
	}
	if upd.Note != nil {
		if err := w.WriteField("note", *upd.Note); err != nil {
			return nil, fmt.Errorf("failed to encode note: %w", err)
		}
	}
	if upd.AvatarPath != "" {
		if err := attachFile(w, "avatar", upd.AvatarPath); err != nil {
			return nil, err
		}
	}
	if upd.HeaderPath != "" {
		if err := attachFile(w, "header", upd.HeaderPath); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	var acct models.Account
	_, err := c.do(ctx, call{
		method:      http.MethodPatch,
		path:        "/api/v1/accounts/update_credentials",
		body:        &buf,
		contentType: w.FormDataContentType(),
	}, &acct)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", field, err)
	}
	defer func() { _ = f.Close() }()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", field, err)
	}
	return nil
}
