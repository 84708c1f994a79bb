package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/marco-site-builder/internal/customers"
	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Examined int `json:"examined"`
	Expired  int `json:"expired"`
	Failed   int `json:"failed"`
}

// Sweeper expires unpaid drafts past their deadline.
type Sweeper struct {
	store     Store
	sites     SitePublisher
	sender    Sender
	customers StatusMirror
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewSweeper(store Store, sites SitePublisher, sender Sender, mirror StatusMirror, m *metrics.Metrics, logger *logging.Logger) *Sweeper {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		store:     store,
		sites:     sites,
		sender:    sender,
		customers: mirror,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep claims each overdue draft once, so repeated sweeps notify nobody
// twice. A failure on one conversation does not stop the rest.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	overdue, err := s.store.ListExpired(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("conversation: list expired: %w", err)
	}

	var res SweepResult
	for _, conv := range overdue {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Examined++
		logger := s.logger.With("phone_last4", logging.PhoneLast4(conv.Phone))

		claimed, err := s.store.MarkExpired(ctx, conv.Phone, now)
		if err != nil {
			logger.Error("failed to expire conversation", "error", err)
			res.Failed++
			continue
		}
		if !claimed {
			continue
		}
		res.Expired++

		if s.customers != nil {
			if err := s.customers.SetStatus(ctx, conv.Phone, customers.StatusExpired); err != nil {
				logger.Warn("failed to mirror customer status", "error", err)
			}
		}
		if s.sites != nil && conv.SiteSubdomain != "" {
			if err := s.sites.Remove(ctx, conv.SiteSubdomain); err != nil {
				logger.Warn("failed to remove expired draft", "error", err, "subdomain", conv.SiteSubdomain)
			}
		}

		notice := expiryNotice(conv.SiteName)
		if err := s.store.AppendMessage(ctx, Message{Phone: conv.Phone, Direction: DirectionOutbound, Body: notice}); err != nil {
			logger.Warn("failed to append message log", "error", err)
		}
		if err := s.sender.Send(ctx, conv.Phone, notice, conv.CarrierNumber); err != nil {
			logger.Error("failed to send expiry notice", "error", err)
		}
		logger.Info("draft expired", "subdomain", conv.SiteSubdomain)
	}

	s.metrics.ObserveExpired(res.Expired)
	return res, nil
}
