// ABOUTME: HTTP client for a Mastodon-compatible server API.
// ABOUTME: Owns base URL normalization, bearer auth, request encoding, and error mapping.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389-research/murmur/internal/models"
)

const (
	defaultUserAgent = "murmur/0.1"
	requestTimeout   = 30 * time.Second
)

// Client talks to one server, optionally with an access token.
type Client struct {
	baseURL   *url.URL
	server    string
	token     string
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates requests with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient builds a Client for server, a bare hostname ("example.social")
// or a full base URL.
func NewClient(server string, opts ...Option) (*Client, error) {
	server = NormalizeServer(server)
	if server == "" {
		return nil, models.Validationf("server is required")
	}
	base, err := parseBaseURL(server)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		server:    server,
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeServer trims whitespace and trailing slashes from a server name.
func NormalizeServer(server string) string {
	server = strings.TrimSpace(server)
	return strings.TrimRight(server, "/")
}

// Server returns the normalized server this client is bound to.
func (c *Client) Server() string {
	return c.server
}

// BaseURL returns the scheme and host requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Authenticated returns true if the client carries an access token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// WithAccessToken returns a copy of the client bound to token.
func (c *Client) WithAccessToken(token string) *Client {
	dup := *c
	dup.token = token
	return &dup
}

// HTTPClient exposes the underlying HTTP client for the OAuth exchange.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// PageQuery bounds a paginated read. MaxID is an exclusive upper bound.
type PageQuery struct {
	MaxID   string
	SinceID string
	MinID   string
	Limit   int
}

func (q PageQuery) values() url.Values {
	v := url.Values{}
	if q.MaxID != "" {
		v.Set("max_id", q.MaxID)
	}
	if q.SinceID != "" {
		v.Set("since_id", q.SinceID)
	}
	if q.MinID != "" {
		v.Set("min_id", q.MinID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// call describes one API request.
type call struct {
	method      string
	path        string
	query       url.Values
	form        url.Values
	body        io.Reader
	contentType string
	header      http.Header
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) (http.Header, error) {
	return c.do(ctx, call{method: http.MethodGet, path: path, query: query}, dest)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, dest any) error {
	if form == nil {
		form = url.Values{}
	}
	_, err := c.do(ctx, call{method: http.MethodPost, path: path, form: form}, dest)
	return err
}

func (c *Client) do(ctx context.Context, r call, dest any) (http.Header, error) {
	rel := &url.URL{Path: r.path}
	if len(r.query) > 0 {
		rel.RawQuery = r.query.Encode()
	}
	reqURL := c.baseURL.ResolveReference(rel)

	body, contentType := r.body, r.contentType
	if r.form != nil {
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request %s %s: %w: %w", r.method, r.path, models.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, newAPIError(r.method, r.path, resp)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w: %w", r.path, models.ErrNetwork, err)
	}
	return resp.Header, nil
}

func parseBaseURL(server string) (*url.URL, error) {
	trimmed := strings.TrimSpace(server)
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server %q: %w", server, err)
	}
	if u.Host == "" {
		return nil, models.Validationf("server %q has no host", server)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
