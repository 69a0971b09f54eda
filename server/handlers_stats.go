package server

import (
	"net/http"
)

// HandleStats returns the aggregate farming stats record.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
