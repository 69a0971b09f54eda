package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/point-farmer/store"
)

// HandleChannels serves the channel collection: GET lists, POST creates.
func (h *Handlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		channels, err := h.store.Channels(r.Context())
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to fetch channels")
			return
		}
		writeJSON(w, http.StatusOK, channels)
	case http.MethodPost:
		h.createChannel(w, r)
	default:
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleChannelsDispatcher routes /api/channels/active and /api/channels/{id}.
func (h *Handlers) HandleChannelsDispatcher(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/channels/active" {
		if r.Method != http.MethodGet {
			writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		channels, err := h.store.ActiveChannels(r.Context())
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to fetch active channels")
			return
		}
		writeJSON(w, http.StatusOK, channels)
		return
	}

	id, ok := pathID(r, "/api/channels/")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid channel ID")
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.getChannel(w, r, id)
	case http.MethodPatch:
		h.patchChannel(w, r, id)
	case http.MethodDelete:
		h.deleteChannel(w, r, id)
	default:
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handlers) getChannel(w http.ResponseWriter, r *http.Request, id int64) {
	channel, err := h.store.Channel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Channel not found")
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch channel")
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *Handlers) createChannel(w http.ResponseWriter, r *http.Request) {
	var nc store.NewChannel
	if err := json.NewDecoder(r.Body).Decode(&nc); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	nc.ChannelName = strings.TrimSpace(nc.ChannelName)
	if nc.ChannelName == "" {
		writeMessage(w, http.StatusBadRequest, "channelName is required")
		return
	}

	ctx := r.Context()
	channel, err := h.store.CreateChannel(ctx, nc)
	if errors.Is(err, store.ErrDuplicate) {
		writeMessage(w, http.StatusConflict, "Channel already exists")
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to create channel")
		return
	}

	entry, err := h.store.CreateLog(ctx, store.NewLog{
		ChannelID:    channel.ID,
		ChannelName:  channel.ChannelName,
		ActivityType: store.ActivityConnection,
		Message:      fmt.Sprintf("Added channel %s to farming", channel.ChannelName),
	})
	if err != nil {
		slog.Warn("failed to record channel creation", slog.Any("err", err))
	} else if channel.SendLogsToDiscord {
		h.dispatcher.Send(ctx, entry)
	}

	writeJSON(w, http.StatusCreated, channel)
}

// patchChannel applies a partial update, restricted to the toggles and
// priority. Live state and counters belong to the farming loops.
func (h *Handlers) patchChannel(w http.ResponseWriter, r *http.Request, id int64) {
	var body struct {
		IsActive          *bool   `json:"isActive"`
		AutoClaimPoints   *bool   `json:"autoClaimPoints"`
		ClaimBonuses      *bool   `json:"claimBonuses"`
		SendLogsToDiscord *bool   `json:"sendLogsToDiscord"`
		AutoFollow        *bool   `json:"autoFollow"`
		Priority          *string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Priority != nil {
		switch *body.Priority {
		case store.PriorityHigh, store.PriorityMedium, store.PriorityLow:
		default:
			writeMessage(w, http.StatusBadRequest, "Invalid priority")
			return
		}
	}

	channel, err := h.store.UpdateChannel(r.Context(), id, store.ChannelUpdate{
		IsActive:          body.IsActive,
		AutoClaimPoints:   body.AutoClaimPoints,
		ClaimBonuses:      body.ClaimBonuses,
		SendLogsToDiscord: body.SendLogsToDiscord,
		AutoFollow:        body.AutoFollow,
		Priority:          body.Priority,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Channel not found")
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to update channel")
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *Handlers) deleteChannel(w http.ResponseWriter, r *http.Request, id int64) {
	ctx := r.Context()
	channel, err := h.store.Channel(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Channel not found")
		return
	}
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to delete channel")
		return
	}

	if err := h.store.DeleteChannel(ctx, id); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to delete channel")
		return
	}

	// Existing logs keep the channel name but lose the reference.
	if _, err := h.store.CreateLog(ctx, store.NewLog{
		ChannelName:  channel.ChannelName,
		ActivityType: store.ActivityConnection,
		Message:      fmt.Sprintf("Removed channel %s from farming", channel.ChannelName),
	}); err != nil {
		slog.Warn("failed to record channel deletion", slog.Any("err", err))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
