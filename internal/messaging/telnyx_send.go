package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

var telnyxSendTracer = otel.Tracer("marco.internal.messaging.telnyx_send")

const defaultTelnyxBaseURL = "https://api.telnyx.com"

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	from               string
	baseURL            string
	httpClient         *http.Client
	logger             *logging.Logger
}

// NewTelnyxSender builds a sender bound to one Telnyx number.
func NewTelnyxSender(apiKey, messagingProfileID, from string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		from:               NormalizeE164(from),
		baseURL:            defaultTelnyxBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Carrier = (*TelnyxSender)(nil)

func (s *TelnyxSender) Name() string { return CarrierTelnyx }

func (s *TelnyxSender) Number() string { return s.from }

// Send dispatches a single SMS via the Telnyx V2 API without retrying.
func (s *TelnyxSender) Send(ctx context.Context, msg SMS) (string, error) {
	if s.apiKey == "" {
		return "", errors.New("messaging: telnyx api key missing")
	}
	if msg.From == "" {
		msg.From = s.from
	}
	if err := validateSMS(msg); err != nil {
		return "", err
	}

	ctx, span := telnyxSendTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("marco.to_last4", logging.PhoneLast4(msg.To)),
		attribute.String("marco.from", msg.From),
	)

	payload := map[string]string{
		"from": msg.From,
		"to":   msg.To,
		"text": msg.Body,
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("messaging: failed to marshal telnyx payload: %w", err)
	}

	endpoint := strings.TrimRight(s.baseURL, "/") + "/v2/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("messaging: build telnyx request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("messaging: telnyx send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("telnyx send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		return "", err
	}

	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(body, &parsed)
	s.logger.Info("telnyx sms sent", "to_last4", logging.PhoneLast4(msg.To), "from", msg.From, "id", parsed.Data.ID)
	return parsed.Data.ID, nil
}
