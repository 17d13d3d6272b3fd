// ABOUTME: OAuth app registration, authorize URL construction, and code exchange.
// ABOUTME: Uses golang.org/x/oauth2 for the authorization-code grant against /oauth/token.
package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/2389-research/murmur/internal/models"
)

// OutOfBandRedirect asks the server to display the code instead of redirecting.
const OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"

// DefaultScopes are requested for every login.
var DefaultScopes = []string{"read", "write", "follow"}

// AppRegistration describes the client application to register.
type AppRegistration struct {
	ClientName  string
	RedirectURI string
	Scopes      []string
	Website     string
}

// Application is the registered client returned by POST /api/v1/apps.
type Application struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Website      string `json:"website"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// RegisterApp registers a client application and returns its credentials.
func (c *Client) RegisterApp(ctx context.Context, reg AppRegistration) (*Application, error) {
	scopes := reg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	form := url.Values{}
	form.Set("client_name", reg.ClientName)
	form.Set("redirect_uris", reg.RedirectURI)
	form.Set("scopes", strings.Join(scopes, " "))
	if reg.Website != "" {
		form.Set("website", reg.Website)
	}

	var app Application
	if err := c.postForm(ctx, "/api/v1/apps", form, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// OAuthConfig builds the oauth2 configuration for this server.
func (c *Client) OAuthConfig(clientID, clientSecret, redirectURI string, scopes []string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	base := c.BaseURL()
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL returns the URL the user must open to grant access.
func (c *Client) AuthorizeURL(clientID, redirectURI, state string, scopes []string) string {
	return c.OAuthConfig(clientID, "", redirectURI, scopes).AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, clientID, clientSecret, redirectURI, code string) (string, error) {
	cfg := c.OAuthConfig(clientID, clientSecret, redirectURI, nil)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			msg := re.ErrorDescription
			if msg == "" {
				msg = errorMessage(re.Body)
			}
			return "", &APIError{Method: "POST", Path: "/oauth/token", StatusCode: re.Response.StatusCode, Message: msg}
		}
		return "", fmt.Errorf("exchange code: %w: %w", models.ErrNetwork, err)
	}
	return tok.AccessToken, nil
}
