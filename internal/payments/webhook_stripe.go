package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/internal/events"
	"github.com/wolfman30/marco-site-builder/internal/messaging"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

var stripeTracer = otel.Tracer("marco.internal.payments.stripe")

const (
	providerStripe          = "stripe"
	eventCheckoutCompleted  = "checkout.session.completed"
	signatureToleranceInSec = 300
)

type activator interface {
	Activate(ctx context.Context, phone, source string) (*conversation.Conversation, error)
}

// StripeWebhookHandler activates a customer's site when their checkout completes.
type StripeWebhookHandler struct {
	webhookSecret string
	activator     activator
	processed     events.Deduper
	logger        *logging.Logger
	now           func() time.Time
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks.
func NewStripeWebhookHandler(webhookSecret string, activator activator, processed events.Deduper, logger *logging.Logger) *StripeWebhookHandler {
	if strings.TrimSpace(webhookSecret) == "" {
		panic("payments: webhook secret cannot be empty")
	}
	if activator == nil {
		panic("payments: activator cannot be nil")
	}
	if processed == nil {
		panic("payments: processed tracker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		activator:     activator,
		processed:     processed,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := stripeTracer.Start(r.Context(), "payments.stripe.webhook")
	defer span.End()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature"), h.now()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("marco.stripe.event_type", evt.Type))

	if evt.Type != eventCheckoutCompleted {
		w.WriteHeader(http.StatusOK)
		return
	}

	phone := messaging.NormalizeE164(evt.Data.Object.customerPhone())
	if phone == "" {
		h.logger.Warn("stripe checkout has no customer phone", "event_id", evt.ID, "session_id", evt.Data.Object.ID)
		// Acknowledge so Stripe stops retrying; nothing here can be activated.
		w.WriteHeader(http.StatusOK)
		return
	}

	first, err := h.processed.Claim(ctx, providerStripe, evt.ID)
	if err != nil {
		h.logger.Error("processed lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !first {
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.activator.Activate(ctx, phone, conversation.SourcePayment); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			h.logger.Warn("stripe checkout for unknown phone", "event_id", evt.ID, "phone_last4", logging.PhoneLast4(phone))
			w.WriteHeader(http.StatusOK)
			return
		}
		span.RecordError(err)
		h.logger.Error("activation from payment failed", "error", err, "event_id", evt.ID, "phone_last4", logging.PhoneLast4(phone))
		if relErr := h.processed.Release(ctx, providerStripe, evt.ID); relErr != nil {
			h.logger.Error("failed to release stripe event", "error", relErr, "event_id", evt.ID)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("site activated by payment", "event_id", evt.ID, "phone_last4", logging.PhoneLast4(phone), "amount_total", evt.Data.Object.AmountTotal)
	w.WriteHeader(http.StatusOK)
}

// stripeWebhookEvent represents a Stripe webhook event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeSessionObject `json:"object"`
	} `json:"data"`
}

// stripeSessionObject is the checkout.session object from the webhook.
type stripeSessionObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   struct {
		Phone string `json:"phone"`
	} `json:"customer_details"`
}

// customerPhone prefers the reference we attach to the payment link over
// whatever the customer typed at checkout.
func (s stripeSessionObject) customerPhone() string {
	if v := strings.TrimSpace(s.ClientReferenceID); v != "" {
		return v
	}
	if v := strings.TrimSpace(s.Metadata["phone"]); v != "" {
		return v
	}
	return strings.TrimSpace(s.CustomerDetails.Phone)
}

// verifyStripeSignature verifies a Stripe webhook signature.
// Stripe signs with HMAC-SHA256 and sends the signature in the Stripe-Signature header
// as: t=<timestamp>,v1=<signature>[,v0=<test_signature>]
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(now.Unix()-ts) > signatureToleranceInSec {
		return false
	}

	expected := stripeSignature(secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func stripeSignature(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, string(payload))))
	return hex.EncodeToString(mac.Sum(nil))
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
