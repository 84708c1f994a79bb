package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrInvalidState), errors.Is(err, conversation.ErrStale):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
