package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// Publisher enqueues inbound messages for the worker.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound publishes an inbound SMS job and returns its id.
func (p *Publisher) EnqueueInbound(ctx context.Context, msg InboundMessage) (string, error) {
	if msg.From == "" {
		return "", errors.New("conversation: inbound message has no sender")
	}
	payload, body, err := encodePayload(queuePayload{Kind: jobTypeInbound, Inbound: &msg})
	if err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "kind", payload.Kind, "provider", msg.Provider)
	return payload.ID, nil
}
