package messaging

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

var routerTracer = otel.Tracer("marco.internal.messaging.router")

// ErrNoCarrier is returned when no backend is configured.
var ErrNoCarrier = errors.New("messaging: no carrier configured")

// Router picks the carrier whose number originated the conversation so the
// customer always hears back from the number they texted.
type Router struct {
	byNumber map[string]Carrier
	fallback Carrier
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewRouter indexes carriers by their own number. The fallback handles
// conversations whose originating number matches none of them.
func NewRouter(fallback Carrier, carriers []Carrier, m *metrics.Metrics, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Router{
		byNumber: make(map[string]Carrier, len(carriers)),
		fallback: fallback,
		metrics:  m,
		logger:   logger,
	}
	for _, c := range carriers {
		if c == nil {
			continue
		}
		if n := NormalizeE164(c.Number()); n != "" {
			r.byNumber[n] = c
		}
		if r.fallback == nil {
			r.fallback = c
		}
	}
	return r
}

// Numbers lists the carrier numbers the router sends from.
func (r *Router) Numbers() []string {
	out := make([]string, 0, len(r.byNumber))
	for n := range r.byNumber {
		out = append(out, n)
	}
	return out
}

// Select returns the carrier for an originating number.
func (r *Router) Select(originatingNumber string) Carrier {
	if c, ok := r.byNumber[NormalizeE164(originatingNumber)]; ok {
		return c
	}
	return r.fallback
}

// Send delivers body to the customer once. A fallback carrier sends from its
// own number rather than the unknown originating one.
func (r *Router) Send(ctx context.Context, to, body, originatingNumber string) error {
	carrier := r.Select(originatingNumber)
	if carrier == nil {
		return ErrNoCarrier
	}
	ctx, span := routerTracer.Start(ctx, "messaging.router.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("marco.carrier", carrier.Name()),
		attribute.String("marco.to_last4", logging.PhoneLast4(to)),
	)

	_, err := carrier.Send(ctx, SMS{To: NormalizeE164(to), From: carrier.Number(), Body: body})
	if err != nil {
		span.RecordError(err)
		r.metrics.ObserveOutbound(carrier.Name(), "failed")
		r.logger.Error("sms send failed", "carrier", carrier.Name(), "to_last4", logging.PhoneLast4(to), "error", err)
		return err
	}
	r.metrics.ObserveOutbound(carrier.Name(), "sent")
	return nil
}
