package bootstrap

import (
	appconfig "github.com/wolfman30/marco-site-builder/internal/config"
	"github.com/wolfman30/marco-site-builder/internal/messaging"
	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// BuildCarrierRouter creates the outbound SMS router from configured carriers.
// The router is never nil; with no carriers every send fails with
// messaging.ErrNoCarrier and reason explains what is missing.
func BuildCarrierRouter(cfg *appconfig.Config, m *metrics.Metrics, logger *logging.Logger) (*messaging.Router, string) {
	if cfg == nil {
		return messaging.NewRouter(nil, nil, m, logger), "missing config"
	}
	return messaging.BuildRouter(messaging.ProviderSelectionConfig{
		DefaultCarrier:   cfg.DefaultCarrier,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxMessagingProfileID,
		TelnyxFromNumber: cfg.TelnyxFromNumber,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
	}, m, logger)
}
