package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/internal/deploy"
	"github.com/wolfman30/marco-site-builder/internal/messaging"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

const adminHistoryLimit = 50

type adminOperations interface {
	Get(ctx context.Context, phone string) (*conversation.Conversation, error)
	Activate(ctx context.Context, phone, source string) (*conversation.Conversation, error)
	Reset(ctx context.Context, phone string) error
	Enter(ctx context.Context, phone string) (*conversation.Conversation, error)
}

type messageLister interface {
	RecentMessages(ctx context.Context, phone string, limit int) ([]conversation.Message, error)
}

type deploymentLister interface {
	ListByPhone(ctx context.Context, phone string, limit int) ([]deploy.Record, error)
}

// AdminConversationsHandler serves operator endpoints for one phone's conversation.
type AdminConversationsHandler struct {
	ops         adminOperations
	messages    messageLister
	deployments deploymentLister
	logger      *logging.Logger
}

// NewAdminConversationsHandler creates a new admin conversations handler.
// deployments may be nil when deployment history is not persisted.
func NewAdminConversationsHandler(ops adminOperations, messages messageLister, deployments deploymentLister, logger *logging.Logger) *AdminConversationsHandler {
	if ops == nil {
		panic("handlers: operations cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{
		ops:         ops,
		messages:    messages,
		deployments: deployments,
		logger:      logger,
	}
}

// ConversationDetailResponse is the admin view of a conversation.
type ConversationDetailResponse struct {
	Conversation *conversation.Conversation `json:"conversation"`
	HasSiteHTML  bool                       `json:"has_site_html"`
	Messages     []conversation.Message     `json:"messages"`
	Deployments  []deploy.Record            `json:"deployments,omitempty"`
}

// GetConversation returns the record, its recent message log and deploy history.
// GET /admin/conversations/{phone}
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	conv, err := h.ops.Get(r.Context(), phone)
	if err != nil {
		h.fail(w, "get conversation", phone, err)
		return
	}
	resp := ConversationDetailResponse{
		Conversation: conv,
		HasSiteHTML:  conv.SiteHTML != "",
		Messages:     []conversation.Message{},
	}
	if h.messages != nil {
		msgs, err := h.messages.RecentMessages(r.Context(), phone, adminHistoryLimit)
		if err != nil {
			h.logger.Warn("failed to load message log", "error", err, "phone_last4", logging.PhoneLast4(phone))
		} else if msgs != nil {
			resp.Messages = msgs
		}
	}
	if h.deployments != nil {
		records, err := h.deployments.ListByPhone(r.Context(), phone, adminHistoryLimit)
		if err != nil {
			h.logger.Warn("failed to load deployments", "error", err, "phone_last4", logging.PhoneLast4(phone))
		} else {
			resp.Deployments = records
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Activate marks the conversation paid without a payment event.
// POST /admin/conversations/{phone}/activate
func (h *AdminConversationsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	conv, err := h.ops.Activate(r.Context(), phone, conversation.SourceAdmin)
	if err != nil {
		h.fail(w, "activate", phone, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Reset wipes the conversation back to greeting and purges its message log.
// POST /admin/conversations/{phone}/reset
func (h *AdminConversationsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	if err := h.ops.Reset(r.Context(), phone); err != nil {
		h.fail(w, "reset", phone, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phone": phone, "state": string(conversation.StateGreeting)})
}

// Enter lets a waitlisted phone into onboarding.
// POST /admin/conversations/{phone}/enter
func (h *AdminConversationsHandler) Enter(w http.ResponseWriter, r *http.Request) {
	phone, ok := phoneParam(w, r)
	if !ok {
		return
	}
	conv, err := h.ops.Enter(r.Context(), phone)
	if err != nil {
		h.fail(w, "enter", phone, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *AdminConversationsHandler) fail(w http.ResponseWriter, action, phone string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("admin "+action+" failed", "error", err, "phone_last4", logging.PhoneLast4(phone))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func phoneParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	phone := messaging.NormalizeE164(chi.URLParam(r, "phone"))
	if phone == "" {
		writeError(w, http.StatusBadRequest, "invalid phone")
		return "", false
	}
	return phone, true
}
