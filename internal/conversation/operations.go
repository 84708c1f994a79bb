package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/marco-site-builder/internal/customers"
	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// ActivationNotifier is told when a site goes live.
type ActivationNotifier interface {
	NotifyActivation(ctx context.Context, phone, siteURL, source string) error
}

// Activation sources.
const (
	SourceAdmin   = "admin"
	SourcePayment = "payment"
)

// Operations are the trusted state changes made outside the dialogue:
// activation, reset, waitlist entry and signup.
type Operations struct {
	store     Store
	sender    Sender
	customers StatusMirror
	notifier  ActivationNotifier
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

type OperationsOption func(*Operations)

func WithActivationNotifier(n ActivationNotifier) OperationsOption {
	return func(o *Operations) { o.notifier = n }
}

func WithOperationsMetrics(m *metrics.Metrics) OperationsOption {
	return func(o *Operations) { o.metrics = m }
}

func WithOperationsClock(now func() time.Time) OperationsOption {
	return func(o *Operations) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOperations(store Store, sender Sender, mirror StatusMirror, logger *logging.Logger, opts ...OperationsOption) *Operations {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Operations{
		store:     store,
		sender:    sender,
		customers: mirror,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Operations) Get(ctx context.Context, phone string) (*Conversation, error) {
	return o.store.Get(ctx, phone)
}

// Activate moves phone to active regardless of where the dialogue is.
// Activating an already active conversation changes nothing.
func (o *Operations) Activate(ctx context.Context, phone, source string) (*Conversation, error) {
	conv, err := o.store.Get(ctx, phone)
	if err != nil {
		return nil, err
	}
	if conv.State == StateActive {
		return conv, nil
	}

	now := o.now()
	conv.State = StateActive
	conv.PaidAt = &now
	conv.ExpiresAt = nil
	if err := o.store.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("conversation: activate: %w", err)
	}
	o.mirror(ctx, phone, customers.StatusLaunched)
	o.metrics.ObserveActivation(source)
	o.logger.Info("conversation activated", "phone_last4", logging.PhoneLast4(phone), "source", source)

	o.send(ctx, conv, activatedReply(conv.SiteURL))
	if o.notifier != nil {
		if err := o.notifier.NotifyActivation(ctx, phone, conv.SiteURL, source); err != nil {
			o.logger.Warn("activation notification failed", "error", err)
		}
	}
	return conv, nil
}

// Reset clears the profile and site fields, purges the message log and
// parks the conversation in greeting so the next text starts onboarding.
func (o *Operations) Reset(ctx context.Context, phone string) error {
	if err := o.store.Reset(ctx, phone, StateGreeting); err != nil {
		return err
	}
	if err := o.store.PurgeMessages(ctx, phone); err != nil {
		return fmt.Errorf("conversation: purge messages: %w", err)
	}
	o.mirror(ctx, phone, customers.StatusNew)
	o.logger.Info("conversation reset", "phone_last4", logging.PhoneLast4(phone))
	return nil
}

// Enter moves a waitlisted phone into onboarding and sends the entry prompt.
func (o *Operations) Enter(ctx context.Context, phone string) (*Conversation, error) {
	conv, err := o.store.Get(ctx, phone)
	if err != nil {
		return nil, err
	}
	if conv.State != StateWaitlist {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, logging.PhoneLast4(phone), conv.State)
	}
	conv.State = EntryState
	if err := o.store.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("conversation: enter: %w", err)
	}
	o.mirror(ctx, phone, customers.StatusNew)
	o.send(ctx, conv, entryPrompt)
	return conv, nil
}

// JoinWaitlist registers phone for a later invitation. Phones that already
// have a conversation are left as they are.
func (o *Operations) JoinWaitlist(ctx context.Context, phone string) (*Conversation, bool, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, false, errors.New("conversation: phone is required")
	}
	conv, created, err := o.store.GetOrCreate(ctx, phone, "", StateWaitlist)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return conv, false, nil
	}
	o.mirror(ctx, phone, customers.StatusWaitlist)
	o.send(ctx, conv, waitlistReply)
	return conv, true, nil
}

func (o *Operations) send(ctx context.Context, conv *Conversation, body string) {
	if err := o.store.AppendMessage(ctx, Message{Phone: conv.Phone, Direction: DirectionOutbound, Body: body}); err != nil {
		o.logger.Warn("failed to append message log", "error", err)
	}
	if err := o.sender.Send(ctx, conv.Phone, body, conv.CarrierNumber); err != nil {
		o.logger.Error("failed to send message", "error", err, "phone_last4", logging.PhoneLast4(conv.Phone))
	}
}

func (o *Operations) mirror(ctx context.Context, phone string, status customers.Status) {
	if o.customers == nil {
		return
	}
	if err := o.customers.SetStatus(ctx, phone, status); err != nil {
		o.logger.Warn("failed to mirror customer status", "error", err, "status", status)
	}
}
