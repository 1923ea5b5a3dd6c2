// Package chat talks to Slack: response_url callbacks, OAuth and users.info.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Client wraps the Slack calls the app makes. Every call is a single round
// trip bounded by the HTTP client's timeout.
type Client struct {
	httpc        *http.Client
	apiURL       string
	clientID     string
	clientSecret string
}

type Option func(*Client)

func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

func WithAPIURL(apiURL string) Option {
	return func(c *Client) { c.apiURL = strings.TrimRight(apiURL, "/") + "/" }
}

func NewClient(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		httpc:        &http.Client{Timeout: 15 * time.Second},
		apiURL:       slack.APIURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Respond posts msg to a slash command or interaction response_url.
func (c *Client) Respond(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error {
	if responseURL == "" {
		return fmt.Errorf("missing response url")
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, c.httpc, msg); err != nil {
		return fmt.Errorf("failed to post to response url: %w", err)
	}
	return nil
}

// Identity is what the OAuth exchange tells us about the installing user.
type Identity struct {
	UserID      string
	AccessToken string
	TeamID      string
}

// ExchangeCode trades an OAuth code for the authed user's token (oauth.v2.access).
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*Identity, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, c.oauthHTTPClient(), c.clientID, c.clientSecret, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange failed: %w", err)
	}
	if resp.AuthedUser.ID == "" || resp.AuthedUser.AccessToken == "" {
		return nil, fmt.Errorf("oauth response missing authed user")
	}
	return &Identity{
		UserID:      resp.AuthedUser.ID,
		AccessToken: resp.AuthedUser.AccessToken,
		TeamID:      resp.Team.ID,
	}, nil
}

// Profile is the subset of users.info we keep, plus the raw user JSON.
type Profile struct {
	ID   string
	Name string
	Raw  json.RawMessage
}

// UserInfo calls users.info with the given token.
func (c *Client) UserInfo(ctx context.Context, token, userID string) (*Profile, error) {
	api := slack.New(token, slack.OptionHTTPClient(c.httpc), slack.OptionAPIURL(c.apiURL))
	user, err := api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("users.info failed: %w", err)
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user info: %w", err)
	}
	return &Profile{ID: user.ID, Name: user.Name, Raw: raw}, nil
}

// oauthHTTPClient points oauth.v2.access, which slack-go always sends to
// slack.APIURL, at the configured API base.
func (c *Client) oauthHTTPClient() *http.Client {
	if c.apiURL == slack.APIURL {
		return c.httpc
	}
	base, err := url.Parse(c.apiURL)
	if err != nil {
		return c.httpc
	}
	next := c.httpc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   c.httpc.Timeout,
		Transport: &apiURLTransport{base: base, next: next},
	}
}

type apiURLTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *apiURLTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	method := strings.TrimPrefix(req.URL.Path, "/api/")
	out := req.Clone(req.Context())
	out.URL = t.base.ResolveReference(&url.URL{Path: method, RawQuery: req.URL.RawQuery})
	out.Host = ""
	return t.next.RoundTrip(out)
}
