package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/point-farmer/store"
)

// safeSettings is the redacted settings representation. Tokens never leave
// the process; clients only learn whether they are present.
type safeSettings struct {
	TwitchUsername        string    `json:"twitchUsername"`
	TwitchClientID        string    `json:"twitchClientId"`
	DiscordWebhookURL     string    `json:"discordWebhookUrl"`
	MaxConcurrentChannels int       `json:"maxConcurrentChannels"`
	RefreshInterval       int       `json:"refreshInterval"`
	LastUpdated           time.Time `json:"lastUpdated"`
	HasAccessToken        bool      `json:"hasAccessToken"`
	HasRefreshToken       bool      `json:"hasRefreshToken"`
}

func redactSettings(s *store.Settings) safeSettings {
	return safeSettings{
		TwitchUsername:        s.TwitchUsername,
		TwitchClientID:        s.TwitchClientID,
		DiscordWebhookURL:     s.DiscordWebhookURL,
		MaxConcurrentChannels: s.MaxConcurrentChannels,
		RefreshInterval:       s.RefreshInterval,
		LastUpdated:           s.LastUpdated,
		HasAccessToken:        s.TwitchAccessToken != "",
		HasRefreshToken:       s.TwitchRefreshToken != "",
	}
}

// HandleSettings serves the settings singleton: GET returns the redacted
// view, POST replaces, PATCH merges.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.store.Settings(r.Context())
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to fetch settings")
			return
		}
		writeJSON(w, http.StatusOK, redactSettings(settings))
	case http.MethodPost:
		var body store.Settings
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		settings, err := h.store.SaveSettings(r.Context(), body)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, redactSettings(settings))
	case http.MethodPatch:
		var body store.SettingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		settings, err := h.store.UpdateSettings(r.Context(), body)
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to update settings")
			return
		}
		writeJSON(w, http.StatusOK, redactSettings(settings))
	default:
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
