package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

var webhookTracer = otel.Tracer("marco.internal.messaging.webhook")

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, msg conversation.InboundMessage) (string, error)
}

// HandlerConfig wires the carrier webhooks.
type HandlerConfig struct {
	Publisher       inboundPublisher
	TwilioAuthToken string
	TelnyxSecret    string
	OwnNumbers      []string
	Metrics         *metrics.Metrics
	Logger          *logging.Logger
}

// Handler handles carrier webhook requests.
type Handler struct {
	publisher    inboundPublisher
	twilioToken  string
	telnyxSecret string
	ownNumbers   map[string]struct{}
	metrics      *metrics.Metrics
	logger       *logging.Logger
	now          func() time.Time
}

// NewHandler creates a new messaging handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	own := make(map[string]struct{}, len(cfg.OwnNumbers))
	for _, n := range cfg.OwnNumbers {
		if n = NormalizeE164(n); n != "" {
			own[n] = struct{}{}
		}
	}
	return &Handler{
		publisher:    cfg.Publisher,
		twilioToken:  cfg.TwilioAuthToken,
		telnyxSecret: cfg.TelnyxSecret,
		ownNumbers:   own,
		metrics:      cfg.Metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// TwilioWebhook handles POST /webhooks/twilio requests.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	if h.twilioToken != "" {
		if !ValidateTwilioSignature(r, h.twilioToken, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio signature")
			h.metrics.ObserveInbound(CarrierTwilio, "unauthorized")
			span.RecordError(errors.New("invalid twilio signature"))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	from := NormalizeE164(webhook.From)
	to := NormalizeE164(webhook.To)
	span.SetAttributes(
		attribute.String("marco.twilio.message_sid", webhook.MessageSid),
		attribute.String("marco.from_last4", logging.PhoneLast4(from)),
	)
	if from == "" || strings.TrimSpace(webhook.Body) == "" {
		h.metrics.ObserveInbound(CarrierTwilio, "invalid")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	status := h.accept(ctx, conversation.InboundMessage{
		Provider:          CarrierTwilio,
		ProviderMessageID: webhook.MessageSid,
		From:              from,
		To:                to,
		Body:              webhook.Body,
	}, false)
	if status != http.StatusOK {
		http.Error(w, "Failed to schedule reply", status)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// TelnyxWebhook handles POST /webhooks/telnyx requests.
func (h *Handler) TelnyxWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.telnyx.webhook")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.telnyxSecret != "" {
		if err := verifyTelnyxSignature(h.telnyxSecret, r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body, h.now()); err != nil {
			h.logger.Warn("invalid telnyx webhook signature", "error", err)
			h.metrics.ObserveInbound(CarrierTelnyx, "unauthorized")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}
	evt, err := parseTelnyxEvent(body)
	if err != nil {
		h.metrics.ObserveInbound(CarrierTelnyx, "invalid")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("marco.telnyx.event_type", evt.EventType))
	if evt.EventType != "message.received" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var payload telnyxMessagePayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		h.metrics.ObserveInbound(CarrierTelnyx, "invalid")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	from := NormalizeE164(payload.FromNumber())
	if from == "" || strings.TrimSpace(payload.Text) == "" {
		h.metrics.ObserveInbound(CarrierTelnyx, "invalid")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	messageID := payload.ID
	if messageID == "" {
		messageID = evt.ID
	}
	status := h.accept(ctx, conversation.InboundMessage{
		Provider:          CarrierTelnyx,
		ProviderMessageID: messageID,
		From:              from,
		To:                NormalizeE164(payload.ToNumber()),
		Body:              payload.Text,
	}, strings.EqualFold(payload.Direction, "outbound"))
	if status != http.StatusOK {
		http.Error(w, "processing error", status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// accept drops self-originated echoes and enqueues everything else.
func (h *Handler) accept(ctx context.Context, msg conversation.InboundMessage, outbound bool) int {
	if _, own := h.ownNumbers[msg.From]; own || outbound {
		h.metrics.ObserveInbound(msg.Provider, "echo")
		h.logger.Debug("ignoring outbound echo", "provider", msg.Provider, "message_id", msg.ProviderMessageID)
		return http.StatusOK
	}
	msg.ReceivedAt = h.now().UTC()

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	jobID, err := h.publisher.EnqueueInbound(publishCtx, msg)
	if err != nil {
		h.metrics.ObserveInbound(msg.Provider, "enqueue_failed")
		h.logger.Error("failed to enqueue inbound sms", "error", err, "provider", msg.Provider, "message_id", msg.ProviderMessageID)
		return http.StatusInternalServerError
	}
	h.metrics.ObserveInbound(msg.Provider, "accepted")
	h.logger.Info("inbound sms queued", "provider", msg.Provider, "job_id", jobID, "from_last4", logging.PhoneLast4(msg.From))
	return http.StatusOK
}
