package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/internal/messaging"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

type waitlistJoiner interface {
	JoinWaitlist(ctx context.Context, phone string) (*conversation.Conversation, bool, error)
}

// WaitlistHandler takes public signups from the landing page.
type WaitlistHandler struct {
	joiner waitlistJoiner
	logger *logging.Logger
}

func NewWaitlistHandler(joiner waitlistJoiner, logger *logging.Logger) *WaitlistHandler {
	if joiner == nil {
		panic("handlers: waitlist joiner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WaitlistHandler{joiner: joiner, logger: logger}
}

type waitlistRequest struct {
	Phone string `json:"phone"`
}

// Join handles POST /waitlist with a JSON or form-encoded phone.
func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	var raw string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req waitlistRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		raw = req.Phone
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return
		}
		raw = r.FormValue("phone")
	}

	phone := messaging.NormalizeE164(raw)
	if len(phone) < 11 {
		writeError(w, http.StatusBadRequest, "a valid phone number is required")
		return
	}

	conv, created, err := h.joiner.JoinWaitlist(r.Context(), phone)
	if err != nil {
		h.logger.Error("waitlist signup failed", "error", err, "phone_last4", logging.PhoneLast4(phone))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("waitlist signup", "phone_last4", logging.PhoneLast4(phone))
	}
	writeJSON(w, status, map[string]any{
		"phone":   phone,
		"state":   conv.State,
		"created": created,
	})
}
