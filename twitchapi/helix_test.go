package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetStreamsSendsHeadersAndLogins(t *testing.T) {
	var gotPath string
	var gotLogins []string
	var gotClientID, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLogins = r.URL.Query()["user_login"]
		gotClientID = r.Header.Get("Client-Id")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"user_id": "1", "user_login": "lirik", "user_name": "LIRIK", "viewer_count": 42},
		}})
	}))
	defer srv.Close()

	c := &Client{ClientID: "cid", BaseURL: srv.URL}
	streams, err := c.GetStreams(context.Background(), "tok", []string{"lirik", "pokimane"})
	if err != nil {
		t.Fatalf("GetStreams: %v", err)
	}
	if gotPath != "/helix/streams" {
		t.Errorf("path = %q", gotPath)
	}
	if len(gotLogins) != 2 || gotLogins[0] != "lirik" || gotLogins[1] != "pokimane" {
		t.Errorf("user_login params = %v", gotLogins)
	}
	if gotClientID != "cid" || gotAuth != "Bearer tok" {
		t.Errorf("headers = %q / %q", gotClientID, gotAuth)
	}
	if len(streams) != 1 || streams[0].UserLogin != "lirik" || streams[0].ViewerCount != 42 {
		t.Errorf("streams = %+v", streams)
	}
}

func TestGetStreamsEmptyLoginsSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	streams, err := c.GetStreams(context.Background(), "tok", nil)
	if err != nil || streams != nil {
		t.Fatalf("got %v, %v", streams, err)
	}
	if called {
		t.Errorf("no request expected for empty logins")
	}
}

func TestGetStreamsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	_, err := c.GetStreams(context.Background(), "expired", []string{"lirik"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestGetStreamsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	_, err := c.GetStreams(context.Background(), "tok", []string{"lirik"})
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want generic error, got %v", err)
	}
}
