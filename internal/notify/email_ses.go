package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends operator notices through SES v2. Each message carries a
// "notice" tag with its kind.
type SESSender struct {
	client sesAPI
	from   From
	logger *logging.Logger
}

func NewSESSender(client sesAPI, from From, logger *logging.Logger) (*SESSender, error) {
	if client == nil {
		return nil, errors.New("notify: ses client required")
	}
	from, err := from.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{client: client, from: from, logger: logger}, nil
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	body := &types.Body{Html: utf8Content(htmlOrText(msg))}
	if msg.Text != "" {
		body.Text = utf8Content(msg.Text)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.String()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
		EmailTags: []types.MessageTag{{Name: aws.String("notice"), Value: aws.String(tag(msg.Kind))}},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("ses send failed", "error", err, "kind", msg.Kind)
		return fmt.Errorf("notify: ses %s: %w", msg.Kind, err)
	}
	s.logger.Info("operator email sent", "provider", "ses", "kind", msg.Kind, "message_id", aws.ToString(out.MessageId))
	return nil
}

var _ EmailSender = (*SESSender)(nil)
