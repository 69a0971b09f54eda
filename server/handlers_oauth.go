package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/onnwee/point-farmer/store"
)

// HandleTwitchOAuthStart initiates the Twitch OAuth flow by redirecting to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.ValidateOAuthReady(); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	// generate state
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		writeMessage(w, http.StatusInternalServerError, "state gen error")
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, h.oauthConfig().AuthCodeURL(st), http.StatusFound)
}

// HandleTwitchOAuthCallback handles the OAuth callback from Twitch and
// stores the token pair in settings, where the farming loops pick it up.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		writeMessage(w, http.StatusBadRequest, "missing code/state")
		return
	}
	if !h.takeOAuthState(st) {
		writeMessage(w, http.StatusBadRequest, "invalid state")
		return
	}
	ctx := r.Context()
	tok, err := h.oauthConfig().Exchange(ctx, code)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "token exchange failed")
		return
	}
	if _, err := h.store.UpdateSettings(ctx, store.SettingsUpdate{
		TwitchClientID:     &h.cfg.TwitchClientID,
		TwitchAccessToken:  &tok.AccessToken,
		TwitchRefreshToken: &tok.RefreshToken,
	}); err != nil {
		writeMessage(w, http.StatusInternalServerError, "failed to persist tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"expiry":                tok.Expiry,
		"access_token_present":  tok.AccessToken != "",
		"refresh_token_present": tok.RefreshToken != "",
	})
}
