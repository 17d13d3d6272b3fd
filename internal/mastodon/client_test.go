// ABOUTME: Tests for the Mastodon API client using an httptest server.
// ABOUTME: Covers auth headers, paging queries, Link parsing, idempotency keys, and error mapping.
package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2389-research/murmur/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, opts...)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestNewClientNormalizesServer(t *testing.T) {
	tests := []struct {
		name    string
		server  string
		base    string
		wantErr bool
	}{
		{"bare host", "example.social", "https://example.social", false},
		{"trailing slash", " https://example.social/ ", "https://example.social", false},
		{"http kept", "http://127.0.0.1:3000", "http://127.0.0.1:3000", false},
		{"empty", "  ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.server)
			if tt.wantErr {
				if !errors.Is(err, models.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient error: %v", err)
			}
			if c.BaseURL() != tt.base {
				t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), tt.base)
			}
		})
	}
}

func TestHomeTimelineSendsTokenAndCursor(t *testing.T) {
	var gotAuth, gotMaxID, gotLimit string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/timelines/home" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotMaxID = r.URL.Query().Get("max_id")
		gotLimit = r.URL.Query().Get("limit")
		writeJSON(t, w, []models.Post{{ID: "9"}, {ID: "8"}})
	}, WithToken("tok"))

	posts, err := client.HomeTimeline(context.Background(), PageQuery{MaxID: "10", Limit: 2})
	if err != nil {
		t.Fatalf("HomeTimeline error: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "9" {
		t.Errorf("unexpected posts %+v", posts)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotMaxID != "10" || gotLimit != "2" {
		t.Errorf("expected max_id=10 limit=2, got %q %q", gotMaxID, gotLimit)
	}
}

func TestPublicTimelineLocal(t *testing.T) {
	var gotLocal string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotLocal = r.URL.Query().Get("local")
		writeJSON(t, w, []models.Post{})
	})

	if _, err := client.PublicTimeline(context.Background(), PageQuery{}, true); err != nil {
		t.Fatalf("PublicTimeline error: %v", err)
	}
	if gotLocal != "true" {
		t.Errorf("expected local=true, got %q", gotLocal)
	}
}

func TestFollowersParsesLinkHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/accounts/42/followers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Link", `<https://example.social/api/v1/accounts/42/followers?max_id=7>; rel="next", <https://example.social/api/v1/accounts/42/followers?since_id=20>; rel="prev"`)
		writeJSON(t, w, []models.Account{{ID: "20"}, {ID: "8"}})
	})

	page, err := client.Followers(context.Background(), "42", "", 40)
	if err != nil {
		t.Fatalf("Followers error: %v", err)
	}
	if len(page.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(page.Accounts))
	}
	if page.Next != "7" {
		t.Errorf("expected next token 7, got %q", page.Next)
	}
}

func TestNextPageToken(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
	}{
		{"none", "", ""},
		{"prev only", `<https://x/api?since_id=3>; rel="prev"`, ""},
		{"next first", `<https://x/api?max_id=5>; rel="next", <https://x/api?since_id=9>; rel="prev"`, "5"},
		{"next second", `<https://x/api?since_id=9>; rel="prev", <https://x/api?max_id=4&limit=2>; rel="next"`, "4"},
		{"unquoted", `<https://x/api?max_id=6>; rel=next`, "6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.link != "" {
				h.Set("Link", tt.link)
			}
			if got := nextPageToken(h); got != tt.want {
				t.Errorf("nextPageToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRelationshipsQuery(t *testing.T) {
	var gotIDs []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query()["id[]"]
		writeJSON(t, w, []models.Relationship{{ID: "1", Following: true}, {ID: "2"}})
	})

	rels, err := client.Relationships(context.Background(), "1", "2")
	if err != nil {
		t.Fatalf("Relationships error: %v", err)
	}
	if len(rels) != 2 || !rels[0].Following {
		t.Errorf("unexpected relationships %+v", rels)
	}
	if strings.Join(gotIDs, ",") != "1,2" {
		t.Errorf("expected id[]=1,2, got %v", gotIDs)
	}

	none, err := client.Relationships(context.Background())
	if err != nil || none != nil {
		t.Errorf("expected no call for empty ids, got %v %v", none, err)
	}
}

func TestCreateStatusSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	var gotForm map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/statuses" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		writeJSON(t, w, models.Post{ID: "100", Content: r.PostForm.Get("status")})
	}, WithToken("tok"))

	post, err := client.CreateStatus(context.Background(), models.Draft{
		Content:     "hello",
		InReplyToID: "5",
		MediaIDs:    []string{"m1", "m2"},
		Sensitive:   true,
		SpoilerText: "cw",
		Visibility:  models.VisibilityUnlisted,
	}, "key-1")
	if err != nil {
		t.Fatalf("CreateStatus error: %v", err)
	}
	if post.ID != "100" {
		t.Errorf("unexpected post %+v", post)
	}
	if gotKey != "key-1" {
		t.Errorf("expected Idempotency-Key key-1, got %q", gotKey)
	}
	if gotForm["in_reply_to_id"][0] != "5" || len(gotForm["media_ids[]"]) != 2 {
		t.Errorf("unexpected form %v", gotForm)
	}
	if gotForm["visibility"][0] != "unlisted" || gotForm["sensitive"][0] != "true" || gotForm["spoiler_text"][0] != "cw" {
		t.Errorf("unexpected form %v", gotForm)
	}
}

func TestVotePollSendsChoices(t *testing.T) {
	var gotChoices []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/polls/p1/votes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotChoices = r.PostForm["choices[]"]
		writeJSON(t, w, models.Poll{ID: "p1", Voted: true, VotesCount: 3})
	})

	poll, err := client.VotePoll(context.Background(), "p1", []int{0, 2})
	if err != nil {
		t.Fatalf("VotePoll error: %v", err)
	}
	if !poll.Voted || poll.VotesCount != 3 {
		t.Errorf("unexpected poll %+v", poll)
	}
	if strings.Join(gotChoices, ",") != "0,2" {
		t.Errorf("expected choices 0,2, got %v", gotChoices)
	}
}

func TestUpdateCredentialsMultipart(t *testing.T) {
	avatar := filepath.Join(t.TempDir(), "avatar.png")
	if err := os.WriteFile(avatar, []byte("png-bytes"), 0600); err != nil {
		t.Fatalf("write avatar: %v", err)
	}

	var gotName, gotFile string
	var gotNoteSet bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotName = r.FormValue("display_name")
		_, gotNoteSet = r.MultipartForm.Value["note"]
		f, hdr, err := r.FormFile("avatar")
		if err != nil {
			t.Fatalf("avatar missing: %v", err)
		}
		defer func() { _ = f.Close() }()
		data, _ := io.ReadAll(f)
		gotFile = hdr.Filename + ":" + string(data)
		writeJSON(t, w, models.Account{ID: "1", DisplayName: gotName})
	})

	name := "New Name"
	acct, err := client.UpdateCredentials(context.Background(), models.ProfileUpdate{DisplayName: &name, AvatarPath: avatar})
	if err != nil {
		t.Fatalf("UpdateCredentials error: %v", err)
	}
	if acct.DisplayName != "New Name" || gotName != "New Name" {
		t.Errorf("display name not sent: %q", gotName)
	}
	if gotNoteSet {
		t.Error("note should be omitted when nil")
	}
	if gotFile != "avatar.png:png-bytes" {
		t.Errorf("unexpected avatar upload %q", gotFile)
	}
}

func TestDeleteStatus(t *testing.T) {
	var gotMethod string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		writeJSON(t, w, models.Post{ID: "3"})
	})

	if err := client.DeleteStatus(context.Background(), "3"); err != nil {
		t.Fatalf("DeleteStatus error: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("expected DELETE, got %s", gotMethod)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		unauthorized bool
		retryable    bool
		message      string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"The access token is invalid"}`, true, false, "The access token is invalid"},
		{"not found", http.StatusNotFound, `{"error":"Record not found"}`, false, false, "Record not found"},
		{"rate limited", http.StatusTooManyRequests, "slow down", false, true, "slow down"},
		{"server error", http.StatusBadGateway, "", false, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Status(context.Background(), "1")
			if err == nil {
				t.Fatal("expected error")
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.message {
				t.Errorf("unexpected APIError %+v", apiErr)
			}
			if !errors.Is(err, models.ErrNetwork) {
				t.Error("APIError should match ErrNetwork")
			}
			if IsUnauthorized(err) != tt.unauthorized {
				t.Errorf("IsUnauthorized = %v, want %v", IsUnauthorized(err), tt.unauthorized)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestTransportErrorIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(url)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	_, err = client.Instance(context.Background())
	if !errors.Is(err, models.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("transport failures should be retryable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Instance(ctx)
	if IsRetryable(err) {
		t.Errorf("cancelled request should not be retryable: %v", err)
	}
}

func TestRegisterAppAndAuthorizeURL(t *testing.T) {
	var gotForm map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/apps" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotForm = r.PostForm
		writeJSON(t, w, Application{ClientID: "cid", ClientSecret: "secret"})
	})

	app, err := client.RegisterApp(context.Background(), AppRegistration{ClientName: "murmur", RedirectURI: OutOfBandRedirect})
	if err != nil {
		t.Fatalf("RegisterApp error: %v", err)
	}
	if app.ClientID != "cid" || app.ClientSecret != "secret" {
		t.Errorf("unexpected app %+v", app)
	}
	if gotForm["scopes"][0] != "read write follow" || gotForm["redirect_uris"][0] != OutOfBandRedirect {
		t.Errorf("unexpected registration form %v", gotForm)
	}

	authURL := client.AuthorizeURL("cid", OutOfBandRedirect, "nonce", nil)
	for _, want := range []string{client.BaseURL() + "/oauth/authorize?", "client_id=cid", "state=nonce", "response_type=code", "scope=read+write+follow"} {
		if !strings.Contains(authURL, want) {
			t.Errorf("authorize URL %q missing %q", authURL, want)
		}
	}
}

func TestExchangeCode(t *testing.T) {
	var gotForm map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotForm = r.PostForm
		if r.PostForm.Get("code") == "bad" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
			return
		}
		writeJSON(t, w, map[string]string{"access_token": "tok", "token_type": "Bearer"})
	})

	token, err := client.ExchangeCode(context.Background(), "cid", "secret", OutOfBandRedirect, "good")
	if err != nil {
		t.Fatalf("ExchangeCode error: %v", err)
	}
	if token != "tok" {
		t.Errorf("expected token tok, got %q", token)
	}
	if gotForm["grant_type"][0] != "authorization_code" || gotForm["client_secret"][0] != "secret" {
		t.Errorf("unexpected token form %v", gotForm)
	}

	_, err = client.ExchangeCode(context.Background(), "cid", "secret", OutOfBandRedirect, "bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
	if apiErr.Message != "code expired" {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestWithAccessTokenCopies(t *testing.T) {
	c, err := NewClient("example.social")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	authed := c.WithAccessToken("tok")
	if c.Authenticated() {
		t.Error("original client should stay anonymous")
	}
	if !authed.Authenticated() || authed.Server() != "example.social" {
		t.Errorf("unexpected copy %+v", authed)
	}
}
