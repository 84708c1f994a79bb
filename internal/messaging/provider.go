package messaging

import (
	"fmt"
	"strings"

	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// ProviderSelectionConfig captures the credentials required to build the carrier router.
type ProviderSelectionConfig struct {
	DefaultCarrier   string
	TelnyxAPIKey     string
	TelnyxProfileID  string
	TelnyxFromNumber string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// BuildRouter instantiates every carrier that has credentials and a number.
// It returns the router and, when nothing could be configured, the reason.
func BuildRouter(cfg ProviderSelectionConfig, m *metrics.Metrics, logger *logging.Logger) (*Router, string) {
	if logger == nil {
		logger = logging.Default()
	}
	var reasons []string
	carriers := map[string]Carrier{}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		carriers[CarrierTwilio] = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		reasons = append(reasons, "twilio: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER required")
	}
	if cfg.TelnyxAPIKey != "" && cfg.TelnyxFromNumber != "" {
		carriers[CarrierTelnyx] = NewTelnyxSender(cfg.TelnyxAPIKey, cfg.TelnyxProfileID, cfg.TelnyxFromNumber, logger)
	} else {
		reasons = append(reasons, "telnyx: TELNYX_API_KEY and TELNYX_FROM_NUMBER required")
	}

	if len(carriers) == 0 {
		return NewRouter(nil, nil, m, logger), strings.Join(reasons, "; ")
	}

	preference := strings.ToLower(strings.TrimSpace(cfg.DefaultCarrier))
	fallback, ok := carriers[preference]
	if !ok {
		for _, name := range []string{CarrierTwilio, CarrierTelnyx} {
			if c, exists := carriers[name]; exists {
				fallback = c
				break
			}
		}
		if preference != "" {
			logger.Warn("default carrier not configured; using another", "preference", preference, "using", fallback.Name())
		}
	}
	list := make([]Carrier, 0, len(carriers))
	for _, name := range []string{CarrierTwilio, CarrierTelnyx} {
		if c, exists := carriers[name]; exists {
			list = append(list, c)
		}
	}
	logger.Info("sms router configured", "carriers", describeCarriers(list), "default", fallback.Name())
	return NewRouter(fallback, list, m, logger), ""
}

func describeCarriers(list []Carrier) string {
	parts := make([]string, 0, len(list))
	for _, c := range list {
		parts = append(parts, fmt.Sprintf("%s(%s)", c.Name(), logging.PhoneLast4(c.Number())))
	}
	return strings.Join(parts, ",")
}
