package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// Kind names the event behind an operator email.
type Kind string

const (
	KindActivation    Kind = "activation"
	KindDeployFailure Kind = "deploy_failure"
)

// DefaultFromName is used when the configured sender has no display name.
const DefaultFromName = "Marco"

// EmailSender delivers operator email. SendGrid, SES and the log sender
// implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one operator notice.
type EmailMessage struct {
	Kind    Kind
	To      string
	Subject string
	Text    string
	HTML    string
}

// From is the sender identity on operator mail.
type From struct {
	Name    string
	Address string
}

func (f From) normalize() (From, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Address = strings.TrimSpace(f.Address)
	if f.Address == "" {
		return f, errors.New("notify: from address required")
	}
	if f.Name == "" {
		f.Name = DefaultFromName
	}
	return f, nil
}

func (f From) String() string {
	return fmt.Sprintf("%s <%s>", f.Name, f.Address)
}

// tag groups provider-side analytics by notice kind.
func tag(k Kind) string {
	if k == "" {
		return "marco-notice"
	}
	return "marco-" + string(k)
}

// htmlOrText returns msg.HTML, or the text body escaped into a <pre> block.
func htmlOrText(msg EmailMessage) string {
	if msg.HTML != "" {
		return msg.HTML
	}
	return "<pre>" + html.EscapeString(msg.Text) + "</pre>"
}

type sendGridFunc func(ctx context.Context, m *mail.SGMailV3) (status int, body string, err error)

// SendGridSender sends operator notices through the SendGrid v3 API.
type SendGridSender struct {
	send   sendGridFunc
	from   From
	logger *logging.Logger
}

func NewSendGridSender(apiKey string, from From, logger *logging.Logger) (*SendGridSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("notify: sendgrid api key required")
	}
	client := sendgrid.NewSendClient(apiKey)
	return newSendGridSender(func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
		resp, err := client.SendWithContext(ctx, m)
		if err != nil {
			return 0, "", err
		}
		return resp.StatusCode, resp.Body, nil
	}, from, logger)
}

func newSendGridSender(send sendGridFunc, from From, logger *logging.Logger) (*SendGridSender, error) {
	from, err := from.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{send: send, from: from, logger: logger}, nil
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	m := mail.NewSingleEmail(
		mail.NewEmail(s.from.Name, s.from.Address),
		msg.Subject,
		mail.NewEmail("", msg.To),
		msg.Text,
		htmlOrText(msg),
	)
	m.AddCategories(tag(msg.Kind))

	status, body, err := s.send(ctx, m)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "kind", msg.Kind)
		return fmt.Errorf("notify: sendgrid %s: %w", msg.Kind, err)
	}
	if status >= 400 {
		s.logger.Error("sendgrid rejected notice", "status", status, "body", body, "kind", msg.Kind)
		return fmt.Errorf("notify: sendgrid %s returned status %d", msg.Kind, status)
	}
	s.logger.Info("operator email sent", "provider", "sendgrid", "kind", msg.Kind, "status", status)
	return nil
}

// LogEmailSender stands in when no mail provider is configured.
type LogEmailSender struct {
	logger *logging.Logger
}

func NewLogEmailSender(logger *logging.Logger) *LogEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("operator email not sent, no provider configured", "kind", msg.Kind, "subject", msg.Subject)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*LogEmailSender)(nil)
)
