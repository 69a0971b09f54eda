package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/onnwee/point-farmer/config"
	"github.com/onnwee/point-farmer/discord"
	"github.com/onnwee/point-farmer/farm"
	"github.com/onnwee/point-farmer/store"
	"github.com/onnwee/point-farmer/twitchapi"
)

func newOAuthTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	st := store.NewMemStore()
	dispatcher := &discord.Dispatcher{Store: st}
	controller := farm.NewController(st, &twitchapi.Client{}, dispatcher, farm.Options{})
	h := NewHandlers(context.Background(), st, controller, dispatcher, cfg)
	srv := httptest.NewServer(NewMux(context.Background(), h))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthStartUnconfigured(t *testing.T) {
	srv := newOAuthTestServer(t, &config.Config{})
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/auth/twitch/start", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestOAuthStartRedirectsWithState(t *testing.T) {
	srv := newOAuthTestServer(t, &config.Config{
		TwitchClientID:     "cid",
		TwitchClientSecret: "secret",
		TwitchRedirectURI:  "http://localhost:8080/auth/twitch/callback",
		TwitchScopes:       "user:read:email",
	})

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(srv.URL + "/auth/twitch/start")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Host != "id.twitch.tv" {
		t.Errorf("redirect host = %q", loc.Host)
	}
	q := loc.Query()
	if q.Get("client_id") != "cid" || q.Get("state") == "" {
		t.Errorf("authorize URL missing params: %v", q)
	}
}

func TestOAuthCallbackRejectsBadState(t *testing.T) {
	srv := newOAuthTestServer(t, &config.Config{
		TwitchClientID:     "cid",
		TwitchClientSecret: "secret",
		TwitchRedirectURI:  "http://localhost:8080/auth/twitch/callback",
	})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/auth/twitch/callback?code=abc&state=forged", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("forged state status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/auth/twitch/callback", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing code/state status = %d, want 400", resp.StatusCode)
	}
}
