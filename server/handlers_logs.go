package server

import (
	"net/http"
)

// HandleLogs returns the most recent activity log entries, newest first.
func (h *Handlers) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := parseIntQuery(r, "limit", 100)
	logs, err := h.store.Logs(r.Context(), limit)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// HandleChannelLogs returns recent entries for one channel.
func (h *Handlers) HandleChannelLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, ok := pathID(r, "/api/logs/channel/")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid channel ID")
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	logs, err := h.store.ChannelLogs(r.Context(), id, limit)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch channel logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
