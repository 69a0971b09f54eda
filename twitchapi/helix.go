// Package twitchapi contains minimal helpers to interact with Twitch Helix
// for live-status queries and OAuth token refresh, using the user access
// token kept in settings. Base URLs are overridable for tests.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrUnauthorized indicates a 401 from Helix: the access token has expired
// or was revoked. Callers should attempt a token refresh and retry next tick.
var ErrUnauthorized = errors.New("twitch: unauthorized")

// Client provides the single Helix call the poller needs.
type Client struct {
	ClientID   string
	HTTPClient *http.Client
	// BaseURL overrides the Helix API host (tests). Defaults to the real one.
	BaseURL string
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.twitch.tv"
}

// Stream is one live stream row from the Helix streams endpoint.
type Stream struct {
	UserID      string `json:"user_id"`
	UserLogin   string `json:"user_login"`
	UserName    string `json:"user_name"`
	ViewerCount int    `json:"viewer_count"`
}

// GetStreams batch-queries live status for the given logins in one call.
// Only currently-live channels come back; absence means offline.
func (c *Client) GetStreams(ctx context.Context, token string, logins []string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/helix/streams", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for _, login := range logins {
		q.Add("user_login", login)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitch streams request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
