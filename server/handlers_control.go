package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/point-farmer/farm"
	"github.com/onnwee/point-farmer/store"
)

// HandleControl routes POST /api/control/{action}. Farming loops started
// here run on the process context, not the request context.
func (h *Handlers) HandleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/control/")
	switch action {
	case "start":
		if err := h.controller.Start(h.ctx); err != nil {
			if errors.Is(err, farm.ErrNoCredentials) {
				writeMessage(w, http.StatusBadRequest, "Twitch credentials not configured")
				return
			}
			writeMessage(w, http.StatusInternalServerError, "Failed to start Twitch farming")
			return
		}
		writeMessage(w, http.StatusOK, "Twitch farming started")
	case "stop":
		h.controller.Stop()
		writeMessage(w, http.StatusOK, "Twitch farming stopped")
	case "send-webhook-test":
		entry, err := h.store.CreateLog(r.Context(), store.NewLog{
			ActivityType: store.ActivityConnection,
			Message:      "Test webhook message",
		})
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to send test webhook")
			return
		}
		if !h.dispatcher.Send(r.Context(), entry) {
			writeMessage(w, http.StatusInternalServerError, "Failed to send test webhook")
			return
		}
		writeMessage(w, http.StatusOK, "Test webhook sent successfully")
	case "send-pending-webhooks":
		sent := h.dispatcher.SendPending(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"message": "Pending webhooks sent", "sent": sent})
	case "send-daily-summary":
		if !h.dispatcher.SendDailySummary(r.Context()) {
			writeMessage(w, http.StatusInternalServerError, "Failed to send daily summary")
			return
		}
		writeMessage(w, http.StatusOK, "Daily summary sent")
	default:
		writeMessage(w, http.StatusNotFound, "Unknown control action")
	}
}
