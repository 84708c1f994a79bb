package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// SMSSender sends SMS messages to operators.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Service tells the operator about launches and failed deploys.
type Service struct {
	email         EmailSender
	sms           SMSSender
	operatorEmail string
	operatorPhone string
	logger        *logging.Logger
	now           func() time.Time
}

// Config names where operator notifications go. Empty fields disable that channel.
type Config struct {
	OperatorEmail string
	OperatorPhone string
}

// NewService creates a notification service.
func NewService(email EmailSender, sms SMSSender, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:         email,
		sms:           sms,
		operatorEmail: strings.TrimSpace(cfg.OperatorEmail),
		operatorPhone: strings.TrimSpace(cfg.OperatorPhone),
		logger:        logger,
		now:           time.Now,
	}
}

// NotifyActivation reports a site that went live, by payment or by an operator.
func (s *Service) NotifyActivation(ctx context.Context, phone, siteURL, source string) error {
	when := s.now().UTC().Format("January 2, 2006 at 3:04 PM MST")
	subject := fmt.Sprintf("Site launched (%s)", source)
	body := fmt.Sprintf("Customer: %s\nSite: %s\nActivated via: %s\nAt: %s", phone, orNone(siteURL), source, when)
	html := fmt.Sprintf(`<h2>Site launched</h2>
<p><strong>Customer:</strong> %s</p>
<p><strong>Site:</strong> %s</p>
<p><strong>Activated via:</strong> %s</p>
<p style="color:#666;font-size:12px;">%s</p>`, phone, siteLinkHTML(siteURL), source, when)
	sms := fmt.Sprintf("Marco: site launched for %s via %s. %s", phone, source, truncate(siteURL, 80))
	return s.dispatch(ctx, KindActivation, subject, body, html, sms)
}

// NotifyDeployFailure reports a deploy the customer did not see fail.
func (s *Service) NotifyDeployFailure(ctx context.Context, phone, subdomain, reason string) error {
	subject := fmt.Sprintf("Deploy failed: %s", subdomain)
	body := fmt.Sprintf("Customer: %s\nSubdomain: %s\nError: %s", phone, subdomain, reason)
	html := fmt.Sprintf(`<h2>Deploy failed</h2>
<p><strong>Customer:</strong> %s</p>
<p><strong>Subdomain:</strong> %s</p>
<pre>%s</pre>`, phone, subdomain, truncate(reason, 2000))
	sms := fmt.Sprintf("Marco: deploy failed for %s (%s): %s", subdomain, phone, truncate(reason, 80))
	return s.dispatch(ctx, KindDeployFailure, subject, body, html, sms)
}

func (s *Service) dispatch(ctx context.Context, kind Kind, subject, body, html, sms string) error {
	var errs []error
	if s.email != nil && s.operatorEmail != "" {
		if err := s.email.Send(ctx, EmailMessage{
			Kind:    kind,
			To:      s.operatorEmail,
			Subject: subject,
			Text:    body,
			HTML:    html,
		}); err != nil {
			s.logger.Error("notify: operator email failed", "error", err, "kind", kind)
			errs = append(errs, err)
		}
	}
	if s.sms != nil && s.operatorPhone != "" {
		if err := s.sms.SendSMS(ctx, s.operatorPhone, sms); err != nil {
			s.logger.Error("notify: operator sms failed", "error", err, "kind", kind)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

func siteLinkHTML(url string) string {
	if url == "" {
		return "none"
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, url, url)
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}

// SimpleSMSSender provides a simple SMS sending implementation.
type SimpleSMSSender struct {
	sendFunc func(ctx context.Context, to, body string) error
	logger   *logging.Logger
}

// NewSimpleSMSSender creates an SMS sender with a custom send function.
func NewSimpleSMSSender(sendFunc func(ctx context.Context, to, body string) error, logger *logging.Logger) *SimpleSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SimpleSMSSender{
		sendFunc: sendFunc,
		logger:   logger,
	}
}

// SendSMS sends an SMS message.
func (s *SimpleSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if s.sendFunc == nil {
		s.logger.Warn("notify: SMS sender not configured")
		return nil
	}
	return s.sendFunc(ctx, to, body)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Ensure interface compliance
var _ SMSSender = (*SimpleSMSSender)(nil)
