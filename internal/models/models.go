// ABOUTME: Core data models for sessions, posts, accounts, polls, and notifications.
// ABOUTME: Mirrors the Mastodon-compatible JSON shapes the remote API returns.
package models

import (
	"strings"
	"time"
)

// Session holds the credentials for one server. The access token is only
// meaningful together with the server that issued it.
type Session struct {
	Server       string
	AccessToken  string
	ClientID     string
	ClientSecret string
	UserID       string
}

// HasToken returns true if both the server and the access token are present.
func (s Session) HasToken() bool {
	return s.Server != "" && s.AccessToken != ""
}

// HasClient returns true if app registration credentials are present.
func (s Session) HasClient() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Visibility controls who can see a post.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Valid returns true for the four visibilities the server accepts.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityDirect:
		return true
	}
	return false
}

// Account is a user profile on some server.
type Account struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Acct           string    `json:"acct"`
	DisplayName    string    `json:"display_name"`
	Note           string    `json:"note"`
	URL            string    `json:"url"`
	Avatar         string    `json:"avatar"`
	Header         string    `json:"header"`
	Locked         bool      `json:"locked"`
	Bot            bool      `json:"bot"`
	CreatedAt      time.Time `json:"created_at"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	StatusesCount  int       `json:"statuses_count"`
}

// Key returns the account's unique id.
func (a Account) Key() string {
	return a.ID
}

// Handle returns the @acct form used for display.
func (a Account) Handle() string {
	return "@" + a.Acct
}

// Name returns the display name, falling back to the username.
func (a Account) Name() string {
	if strings.TrimSpace(a.DisplayName) != "" {
		return a.DisplayName
	}
	return a.Username
}

// MediaAttachment is an uploaded image, video, or audio file.
type MediaAttachment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url"`
	Description string `json:"description"`
}

// PollOption is a single choice in a poll.
type PollOption struct {
	Title      string `json:"title"`
	VotesCount int    `json:"votes_count"`
}

// Poll is attached to a post. VotersCount is only reported for multiple-choice polls.
type Poll struct {
	ID          string       `json:"id"`
	ExpiresAt   *time.Time   `json:"expires_at"`
	Expired     bool         `json:"expired"`
	Multiple    bool         `json:"multiple"`
	VotesCount  int          `json:"votes_count"`
	VotersCount *int         `json:"voters_count"`
	Options     []PollOption `json:"options"`
	Voted       bool         `json:"voted"`
	OwnVotes    []int        `json:"own_votes"`
}

// Clone returns a deep copy so snapshots can be restored exactly.
func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Options = append([]PollOption(nil), p.Options...)
	dup.OwnVotes = append([]int(nil), p.OwnVotes...)
	if p.VotersCount != nil {
		n := *p.VotersCount
		dup.VotersCount = &n
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		dup.ExpiresAt = &t
	}
	return &dup
}

// Post is a status snapshot from the server. Only the counters and flags
// touched by optimistic mutations change locally.
type Post struct {
	ID                 string            `json:"id"`
	URI                string            `json:"uri"`
	URL                string            `json:"url"`
	CreatedAt          time.Time         `json:"created_at"`
	Account            Account           `json:"account"`
	Content            string            `json:"content"`
	SpoilerText        string            `json:"spoiler_text"`
	Sensitive          bool              `json:"sensitive"`
	Visibility         Visibility        `json:"visibility"`
	InReplyToID        string            `json:"in_reply_to_id"`
	InReplyToAccountID string            `json:"in_reply_to_account_id"`
	Reblog             *Post             `json:"reblog"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`
	Poll               *Poll             `json:"poll"`
	FavouritesCount    int               `json:"favourites_count"`
	ReblogsCount       int               `json:"reblogs_count"`
	RepliesCount       int               `json:"replies_count"`
	Favourited         bool              `json:"favourited"`
	Reblogged          bool              `json:"reblogged"`
}

// Key returns the post id.
func (p Post) Key() string {
	return p.ID
}

// Target returns the post the user actually interacts with: the reblogged
// original for a boost wrapper, the post itself otherwise.
func (p *Post) Target() *Post {
	if p.Reblog != nil {
		return p.Reblog
	}
	return p
}

// Matches returns true if id names this post or the post it reblogs.
func (p Post) Matches(id string) bool {
	return p.ID == id || (p.Reblog != nil && p.Reblog.ID == id)
}

// Notification is an entry in the notifications feed.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   Account   `json:"account"`
	Status    *Post     `json:"status"`
}

// Key returns the notification id.
func (n Notification) Key() string {
	return n.ID
}

// Relationship describes how the current user relates to another account.
type Relationship struct {
	ID         string `json:"id"`
	Following  bool   `json:"following"`
	FollowedBy bool   `json:"followed_by"`
	Requested  bool   `json:"requested"`
	Blocking   bool   `json:"blocking"`
	Muting     bool   `json:"muting"`
}

// Context holds the reply chain above and below a post.
type Context struct {
	Ancestors   []Post `json:"ancestors"`
	Descendants []Post `json:"descendants"`
}

// Draft is a post the user is composing.
type Draft struct {
	Content     string
	InReplyToID string
	MediaIDs    []string
	Sensitive   bool
	SpoilerText string
	Visibility  Visibility
}

// ProfileUpdate carries optional profile edits. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Note        *string
	AvatarPath  string
	HeaderPath  string
}

// FeedCursor tracks backfill pagination. A page fetched with MaxID=X never
// contains X or anything newer than X.
type FeedCursor struct {
	MaxID   string
	HasMore bool
}

// MutationKind names a togglable relationship.
type MutationKind string

const (
	KindFavourite MutationKind = "favourite"
	KindReblog    MutationKind = "reblog"
	KindFollow    MutationKind = "follow"
	KindVote      MutationKind = "vote"
	KindDelete    MutationKind = "delete"
)

// MutationIntent captures the state before an optimistic change so a failure
// restores it exactly. Intents are never persisted.
type MutationIntent struct {
	TargetID   string
	Kind       MutationKind
	PriorValue bool
	PriorCount int
	Delta      int
	CreatedAt  time.Time
}

// ThreadNode is one post in an assembled reply tree.
type ThreadNode struct {
	Post     Post
	Children []*ThreadNode
	Depth    int
}

// Redirect is what the authorization redirect delivers back to the client.
type Redirect struct {
	Code  string
	State string
	Error string
}
