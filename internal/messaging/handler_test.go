package messaging

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

func TestValidateTwilioSignature(t *testing.T) {
	authToken := "test_token"
	webhookURL := "https://example.com/webhook"

	// Create a test request
	formData := url.Values{}
	formData.Set("MessageSid", "SM123")
	formData.Set("From", "+1234567890")
	formData.Set("Body", "Hello")

	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// Compute expected signature
	payload := buildSignaturePayload(webhookURL, formData)
	expectedSignature := computeSignature(payload, authToken)
	req.Header.Set("X-Twilio-Signature", expectedSignature)

	if !ValidateTwilioSignature(req, authToken, webhookURL) {
		t.Error("expected signature validation to pass")
	}
}

func TestValidateTwilioSignature_InvalidSignature(t *testing.T) {
	authToken := "test_token"
	webhookURL := "https://example.com/webhook"

	formData := url.Values{}
	formData.Set("MessageSid", "SM123")

	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "invalid_signature")

	if ValidateTwilioSignature(req, authToken, webhookURL) {
		t.Error("expected signature validation to fail")
	}
}

func TestValidateTwilioSignature_MissingSignature(t *testing.T) {
	authToken := "test_token"
	webhookURL := "https://example.com/webhook"

	formData := url.Values{}
	formData.Set("MessageSid", "SM123")

	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if ValidateTwilioSignature(req, authToken, webhookURL) {
		t.Error("expected signature validation to fail without signature header")
	}
}

func TestParseTwilioWebhook(t *testing.T) {
	formData := url.Values{}
	formData.Set("MessageSid", "SM123")
	formData.Set("AccountSid", "AC456")
	formData.Set("From", "+1234567890")
	formData.Set("To", "+0987654321")
	formData.Set("Body", "Test message")
	formData.Set("NumMedia", "0")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	webhook, err := ParseTwilioWebhook(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if webhook.MessageSid != "SM123" {
		t.Errorf("expected MessageSid SM123, got %s", webhook.MessageSid)
	}

	if webhook.From != "+1234567890" {
		t.Errorf("expected From +1234567890, got %s", webhook.From)
	}

	if webhook.Body != "Test message" {
		t.Errorf("expected Body 'Test message', got %s", webhook.Body)
	}
}

type stubPublisher struct {
	mu       sync.Mutex
	messages []conversation.InboundMessage
	err      error
}

func (p *stubPublisher) EnqueueInbound(_ context.Context, msg conversation.InboundMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, msg)
	return "job-" + strconv.Itoa(len(p.messages)), nil
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter("error", io.Discard)
}

func twilioForm(sid, from, to, body string) url.Values {
	form := url.Values{}
	form.Set("MessageSid", sid)
	form.Set("AccountSid", "AC1")
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)
	return form
}

func TestTwilioWebhookHandler(t *testing.T) {
	pub := &stubPublisher{}
	handler := NewHandler(HandlerConfig{Publisher: pub, Logger: testLogger()})

	form := twilioForm("SM123", "(555) 123-4567", "+15550001111", "Hello")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	handler.TwilioWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("expected Content-Type text/xml, got %s", ct)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 enqueued message, got %d", len(pub.messages))
	}
	got := pub.messages[0]
	if got.Provider != CarrierTwilio || got.ProviderMessageID != "SM123" {
		t.Errorf("unexpected provider fields: %+v", got)
	}
	if got.From != "+15551234567" || got.To != "+15550001111" {
		t.Errorf("expected normalized numbers, got from=%s to=%s", got.From, got.To)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("expected received time to be stamped")
	}
}

func TestTwilioWebhookHandler_WithSignatureValidation(t *testing.T) {
	authToken := "test_secret"
	pub := &stubPublisher{}
	handler := NewHandler(HandlerConfig{Publisher: pub, TwilioAuthToken: authToken, Logger: testLogger()})

	form := twilioForm("SM123", "+15551234567", "+15550001111", "Hello")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "invalid")
	w := httptest.NewRecorder()
	handler.TwilioWebhook(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	signature := computeSignature(buildSignaturePayload("http://example.com/webhooks/twilio/sms", form), authToken)
	req.Header.Set("X-Twilio-Signature", signature)
	w = httptest.NewRecorder()
	handler.TwilioWebhook(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected signed request to pass, got %d", w.Code)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 enqueued message, got %d", len(pub.messages))
	}
}

func TestTwilioWebhookHandler_Rejects(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		pub  *stubPublisher
		want int
	}{
		{"missing from", twilioForm("SM1", "", "+15550001111", "hi"), &stubPublisher{}, http.StatusBadRequest},
		{"empty body", twilioForm("SM1", "+15551234567", "+15550001111", "  "), &stubPublisher{}, http.StatusBadRequest},
		{"queue down", twilioForm("SM1", "+15551234567", "+15550001111", "hi"), &stubPublisher{err: errors.New("sqs down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(HandlerConfig{Publisher: tt.pub, Logger: testLogger()})
			req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/sms", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			handler.TwilioWebhook(w, req)
			if w.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, w.Code)
			}
			if len(tt.pub.messages) != 0 {
				t.Fatalf("expected nothing enqueued, got %d", len(tt.pub.messages))
			}
		})
	}
}

func TestTwilioWebhookHandler_IgnoresOwnNumber(t *testing.T) {
	pub := &stubPublisher{}
	handler := NewHandler(HandlerConfig{Publisher: pub, OwnNumbers: []string{"+15550001111"}, Logger: testLogger()})

	form := twilioForm("SM9", "+15550001111", "+15551234567", "Done! Your site has been updated.")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.TwilioWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected echo to be dropped, got %d messages", len(pub.messages))
	}
}

const telnyxInbound = `{"data":{"id":"evt-1","event_type":"message.received","occurred_at":"2026-05-04T15:00:00Z","payload":{"id":"msg-1","direction":"inbound","text":"Joe's Pizza","from":{"phone_number":"+15551234567"},"to":[{"phone_number":"+15550002222"}]}}}`

func TestTelnyxWebhookHandler(t *testing.T) {
	pub := &stubPublisher{}
	handler := NewHandler(HandlerConfig{Publisher: pub, Logger: testLogger()})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/messages", strings.NewReader(telnyxInbound))
	w := httptest.NewRecorder()
	handler.TelnyxWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 enqueued message, got %d", len(pub.messages))
	}
	got := pub.messages[0]
	if got.Provider != CarrierTelnyx || got.ProviderMessageID != "msg-1" {
		t.Errorf("unexpected provider fields: %+v", got)
	}
	if got.To != "+15550002222" || got.Body != "Joe's Pizza" {
		t.Errorf("unexpected message: %+v", got)
	}
}

func TestTelnyxWebhookHandler_IgnoresOutboundAndOtherEvents(t *testing.T) {
	pub := &stubPublisher{}
	handler := NewHandler(HandlerConfig{Publisher: pub, Logger: testLogger()})

	cases := []struct {
		body string
		want int
	}{
		{
			body: `{"id":"msg-2","record_type":"message","direction":"outbound","text":"hi","from":{"phone_number":"+15550002222"},"to":[{"phone_number":"+15551234567"}]}`,
			want: http.StatusNoContent,
		},
		{
			body: `{"data":{"id":"evt-3","event_type":"message.finalized","payload":{}}}`,
			want: http.StatusNoContent,
		},
		{
			body: `{"data":{"id":"evt-4","event_type":"message.received","payload":{"id":"m4","direction":"outbound","text":"echo","from":{"phone_number":"+15550002222"}}}}`,
			want: http.StatusOK,
		},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/messages", strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		handler.TelnyxWebhook(w, req)
		if w.Code != tc.want {
			t.Fatalf("body %s: expected status %d, got %d", tc.body, tc.want, w.Code)
		}
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no enqueued messages, got %d", len(pub.messages))
	}
}

func TestTelnyxWebhookHandler_Signature(t *testing.T) {
	secret := "whsec"
	now := time.Unix(1_800_000_000, 0)
	pub := &stubPublisher{}
	handler := NewHandler(HandlerConfig{Publisher: pub, TelnyxSecret: secret, Logger: testLogger()})
	handler.now = func() time.Time { return now }

	ts := strconv.FormatInt(now.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/messages", strings.NewReader(telnyxInbound))
	req.Header.Set("Telnyx-Timestamp", ts)
	req.Header.Set("Telnyx-Signature", "deadbeef")
	w := httptest.NewRecorder()
	handler.TelnyxWebhook(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/messages", strings.NewReader(telnyxInbound))
	req.Header.Set("Telnyx-Timestamp", ts)
	req.Header.Set("Telnyx-Signature", telnyxSignature(secret, ts, []byte(telnyxInbound)))
	w = httptest.NewRecorder()
	handler.TelnyxWebhook(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected signed request to pass, got %d", w.Code)
	}

	stale := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
	req = httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/messages", strings.NewReader(telnyxInbound))
	req.Header.Set("Telnyx-Timestamp", stale)
	req.Header.Set("Telnyx-Signature", telnyxSignature(secret, stale, []byte(telnyxInbound)))
	w = httptest.NewRecorder()
	handler.TelnyxWebhook(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected stale timestamp to be rejected, got %d", w.Code)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected exactly one accepted message, got %d", len(pub.messages))
	}
}
