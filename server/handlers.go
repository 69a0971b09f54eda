// Package server exposes the HTTP API: channel management, activity logs,
// settings, stats, farming control, and access keys. Requests carry a
// correlation ID and an optional tracing span; /api routes require an access
// key unless none exist yet (bootstrap mode).
package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"

	"github.com/onnwee/point-farmer/config"
	"github.com/onnwee/point-farmer/discord"
	"github.com/onnwee/point-farmer/farm"
	"github.com/onnwee/point-farmer/store"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Handlers holds dependencies for all HTTP handlers. ctx is the process
// context: farming loops started over the API outlive the request that
// started them, but not the process.
type Handlers struct {
	ctx        context.Context
	store      store.Store
	controller *farm.Controller
	dispatcher *discord.Dispatcher
	cfg        *config.Config

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, st store.Store, ctrl *farm.Controller, d *discord.Dispatcher, cfg *config.Config) *Handlers {
	return &Handlers{
		ctx:        ctx,
		store:      st,
		controller: ctrl,
		dispatcher: d,
		cfg:        cfg,
		stateStore: make(map[string]time.Time),
	}
}

// oauthConfig builds the Twitch authorization-code config from env settings.
func (h *Handlers) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.cfg.TwitchClientID,
		ClientSecret: h.cfg.TwitchClientSecret,
		RedirectURL:  h.cfg.TwitchRedirectURI,
		Scopes:       []string{h.cfg.TwitchScopes},
		Endpoint:     twitch.Endpoint,
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Refusing past the cap fails the flow, which beats unbounded growth.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}

// takeOAuthState consumes a state, reporting whether it was valid and fresh.
func (h *Handlers) takeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return time.Now().Before(exp)
}
