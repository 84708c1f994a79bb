package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const telnyxMaxSkew = 5 * time.Minute

type telnyxEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type telnyxMessagePayload struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Text      string `json:"text"`
	From      struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"to"`
	FromNumberRaw string `json:"from_number"`
	ToNumberRaw   string `json:"to_number"`
}

func (p telnyxMessagePayload) FromNumber() string {
	if v := strings.TrimSpace(p.From.PhoneNumber); v != "" {
		return v
	}
	return strings.TrimSpace(p.FromNumberRaw)
}

func (p telnyxMessagePayload) ToNumber() string {
	if len(p.To) > 0 {
		if v := strings.TrimSpace(p.To[0].PhoneNumber); v != "" {
			return v
		}
	}
	return strings.TrimSpace(p.ToNumberRaw)
}

// parseTelnyxEvent accepts both the wrapped event format and a bare message record.
func parseTelnyxEvent(body []byte) (telnyxEvent, error) {
	var wrapper struct {
		Data telnyxEvent `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Data.ID != "" {
		return wrapper.Data, nil
	}

	var record struct {
		ID         string    `json:"id"`
		RecordType string    `json:"record_type"`
		ReceivedAt time.Time `json:"received_at"`
		Direction  string    `json:"direction"`
	}
	if err := json.Unmarshal(body, &record); err != nil {
		return telnyxEvent{}, err
	}
	if record.ID == "" {
		return telnyxEvent{}, errors.New("telnyx event has no id")
	}
	eventType := ""
	if record.RecordType == "message" {
		switch record.Direction {
		case "inbound":
			eventType = "message.received"
		case "outbound":
			eventType = "message.sent"
		}
	}
	return telnyxEvent{
		ID:         record.ID,
		EventType:  eventType,
		OccurredAt: record.ReceivedAt,
		Payload:    body,
	}, nil
}

// verifyTelnyxSignature checks an HMAC-SHA256 of "timestamp.body" against the
// hex signature header and rejects timestamps outside the allowed skew.
func verifyTelnyxSignature(secret, timestamp, signature string, payload []byte, now time.Time) error {
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("messaging: missing telnyx signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("messaging: invalid telnyx signature timestamp: %w", err)
	}
	if diff := now.Sub(time.Unix(sec, 0)); diff > telnyxMaxSkew || diff < -telnyxMaxSkew {
		return fmt.Errorf("messaging: telnyx signature timestamp skew %s exceeds limit", diff)
	}
	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("messaging: missing telnyx signature header")
	}
	if !hmac.Equal([]byte(telnyxSignature(secret, ts, payload)), []byte(actual)) {
		return errors.New("messaging: telnyx signature mismatch")
	}
	return nil
}

func telnyxSignature(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}
