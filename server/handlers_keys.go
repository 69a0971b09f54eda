package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/point-farmer/store"
)

// redactedKey hides the key string in list responses. The full value is
// shown exactly once, on creation.
type redactedKey struct {
	store.AccessKey
	Key string `json:"key,omitempty"`
}

func redactKeys(keys []store.AccessKey) []redactedKey {
	out := make([]redactedKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, redactedKey{AccessKey: k, Key: ""})
	}
	return out
}

// HandleKeys serves the access key collection: GET lists (redacted), POST
// creates. Both are admin-gated by the router.
func (h *Handlers) HandleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		keys, err := h.store.AccessKeys(r.Context())
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to fetch keys")
			return
		}
		writeJSON(w, http.StatusOK, redactKeys(keys))
	case http.MethodPost:
		var nk store.NewAccessKey
		if err := json.NewDecoder(r.Body).Decode(&nk); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		key, err := h.store.CreateAccessKey(r.Context(), nk)
		if errors.Is(err, store.ErrDuplicate) {
			writeMessage(w, http.StatusConflict, "Key already exists")
			return
		}
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to create key")
			return
		}
		writeJSON(w, http.StatusCreated, key)
	default:
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleKeysDispatcher routes /api/keys/validate and /api/keys/{id}.
func (h *Handlers) HandleKeysDispatcher(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/keys/validate" {
		h.validateKey(w, r)
		return
	}

	id, ok := pathID(r, "/api/keys/")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var up store.AccessKeyUpdate
		if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		key, err := h.store.UpdateAccessKey(r.Context(), id, up)
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Key not found")
			return
		}
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to update key")
			return
		}
		writeJSON(w, http.StatusOK, redactedKey{AccessKey: *key, Key: ""})
	case http.MethodDelete:
		err := h.store.DeleteAccessKey(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Key not found")
			return
		}
		if err != nil {
			writeMessage(w, http.StatusInternalServerError, "Failed to delete key")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// validateKey reports whether the presented key is usable, without
// requiring auth. Useful for a client probing a stored key.
func (h *Handlers) validateKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	keys, err := h.store.AccessKeys(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to check key")
		return
	}
	matched := matchKey(keys, presentedKey(r))
	resp := map[string]bool{
		"valid": matched != nil,
		"admin": matched != nil && matched.IsAdmin,
	}
	writeJSON(w, http.StatusOK, resp)
}
