package messaging

import (
	"context"
	"fmt"
	"strings"
)

const (
	// CarrierTwilio identifies the Twilio backend.
	CarrierTwilio = "twilio"
	// CarrierTelnyx identifies the Telnyx backend.
	CarrierTelnyx = "telnyx"
)

// SMS is a single outbound text.
type SMS struct {
	To   string
	From string
	Body string
}

// Carrier posts one SMS and returns the provider message id.
type Carrier interface {
	Name() string
	Number() string
	Send(ctx context.Context, msg SMS) (string, error)
}

func validateSMS(msg SMS) error {
	if msg.To == "" {
		return fmt.Errorf("messaging: to required")
	}
	if msg.From == "" {
		return fmt.Errorf("messaging: from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return fmt.Errorf("messaging: body required")
	}
	return nil
}
