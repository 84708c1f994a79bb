package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/marco-site-builder/internal/customers"
	"github.com/wolfman30/marco-site-builder/internal/events"
	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// InboundMessage is a carrier-neutral inbound SMS.
type InboundMessage struct {
	Provider          string    `json:"provider"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	Body              string    `json:"body"`
	ReceivedAt        time.Time `json:"received_at"`
}

// Sender delivers an SMS from the number that originated the conversation.
type Sender interface {
	Send(ctx context.Context, to, body, originatingNumber string) error
}

// StatusMirror records the customer funnel status for a phone.
type StatusMirror interface {
	SetStatus(ctx context.Context, phone string, status customers.Status) error
}

// Processor runs the inbound pipeline: dedupe, log, step, persist, reply.
type Processor struct {
	store      Store
	engine     *Engine
	sender     Sender
	customers  StatusMirror
	dedupe     events.Deduper
	ownNumbers map[string]struct{}
	entry      State
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithInboundDeduper drops repeated provider message ids.
func WithInboundDeduper(d events.Deduper) ProcessorOption {
	return func(p *Processor) { p.dedupe = d }
}

// WithOwnNumbers lists the carrier numbers whose messages are our own echoes.
func WithOwnNumbers(numbers ...string) ProcessorOption {
	return func(p *Processor) {
		for _, n := range numbers {
			if n = strings.TrimSpace(n); n != "" {
				p.ownNumbers[n] = struct{}{}
			}
		}
	}
}

// WithWaitlistEntry creates new conversations in the waitlist state.
func WithWaitlistEntry(enabled bool) ProcessorOption {
	return func(p *Processor) {
		if enabled {
			p.entry = StateWaitlist
		} else {
			p.entry = StateGreeting
		}
	}
}

func WithProcessorMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(store Store, engine *Engine, sender Sender, mirror StatusMirror, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{
		store:      store,
		engine:     engine,
		sender:     sender,
		customers:  mirror,
		ownNumbers: make(map[string]struct{}),
		entry:      StateGreeting,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes one inbound message end to end. Step and send failures
// are answered with an apology and reported as nil; only failures that
// leave the message unprocessed are returned.
func (p *Processor) Handle(ctx context.Context, in InboundMessage) error {
	from := strings.TrimSpace(in.From)
	if from == "" {
		return errors.New("conversation: inbound message has no sender")
	}
	logger := p.logger.With("phone_last4", logging.PhoneLast4(from), "provider", in.Provider)

	if _, own := p.ownNumbers[from]; own {
		logger.Debug("ignoring echo of our own message")
		p.metrics.ObserveInbound(in.Provider, "echo")
		return nil
	}

	if p.dedupe != nil && in.ProviderMessageID != "" {
		first, err := p.dedupe.Claim(ctx, in.Provider, in.ProviderMessageID)
		if err != nil {
			logger.Warn("inbound dedupe unavailable", "error", err)
		} else if !first {
			logger.Info("dropping duplicate inbound delivery", "provider_message_id", in.ProviderMessageID)
			p.metrics.ObserveInbound(in.Provider, "duplicate")
			return nil
		}
	}

	conv, created, err := p.store.GetOrCreate(ctx, from, strings.TrimSpace(in.To), p.entry)
	if err != nil {
		p.releaseClaim(ctx, in)
		return fmt.Errorf("conversation: load %s: %w", logging.PhoneLast4(from), err)
	}
	if created {
		status := customers.StatusNew
		if conv.State == StateWaitlist {
			status = customers.StatusWaitlist
		}
		p.mirrorStatus(ctx, from, status)
	}
	p.metrics.ObserveInbound(in.Provider, "accepted")

	p.appendLog(ctx, Message{
		Phone:             from,
		Direction:         DirectionInbound,
		Body:              in.Body,
		ProviderMessageID: in.ProviderMessageID,
	})

	originating := conv.CarrierNumber
	if originating == "" {
		originating = strings.TrimSpace(in.To)
	}

	res, err := p.engine.Step(ctx, conv, in.Body)
	if err != nil {
		logger.Error("conversation step failed", "error", err, "state", conv.State)
		p.reply(ctx, from, apologyReply, originating)
		return nil
	}

	if res.Persist {
		if err := p.store.Save(ctx, res.Conversation); err != nil {
			logger.Error("failed to persist conversation", "error", err)
			p.reply(ctx, from, apologyReply, originating)
			return nil
		}
	}
	if res.CustomerStatus != "" {
		p.mirrorStatus(ctx, from, res.CustomerStatus)
	}

	p.reply(ctx, from, res.Reply, originating)
	return nil
}

// reply logs and sends body, falling back to one apology attempt when the
// send fails.
func (p *Processor) reply(ctx context.Context, to, body, originating string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	p.appendLog(ctx, Message{Phone: to, Direction: DirectionOutbound, Body: body})
	err := p.sender.Send(ctx, to, body, originating)
	if err == nil {
		return
	}
	p.logger.Error("failed to send reply", "error", err, "phone_last4", logging.PhoneLast4(to))
	if body == apologyReply {
		return
	}
	if err := p.sender.Send(ctx, to, apologyReply, originating); err != nil {
		p.logger.Error("failed to send apology", "error", err, "phone_last4", logging.PhoneLast4(to))
	}
}

func (p *Processor) appendLog(ctx context.Context, msg Message) {
	if err := p.store.AppendMessage(ctx, msg); err != nil {
		p.logger.Warn("failed to append message log", "error", err, "direction", msg.Direction, "phone_last4", logging.PhoneLast4(msg.Phone))
	}
}

func (p *Processor) mirrorStatus(ctx context.Context, phone string, status customers.Status) {
	if p.customers == nil {
		return
	}
	if err := p.customers.SetStatus(ctx, phone, status); err != nil {
		p.logger.Warn("failed to mirror customer status", "error", err, "status", status, "phone_last4", logging.PhoneLast4(phone))
	}
}

func (p *Processor) releaseClaim(ctx context.Context, in InboundMessage) {
	if p.dedupe == nil || in.ProviderMessageID == "" {
		return
	}
	if err := p.dedupe.Release(ctx, in.Provider, in.ProviderMessageID); err != nil {
		p.logger.Warn("failed to release inbound claim", "error", err)
	}
}
