package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/marco-site-builder/internal/customers"
	"github.com/wolfman30/marco-site-builder/internal/deploy"
	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/internal/sitegen"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

var engineTracer = otel.Tracer("marco.conversation.engine")

// SitePublisher stores and deploys generated sites.
type SitePublisher interface {
	Publish(ctx context.Context, req deploy.PublishRequest) deploy.PublishResult
	LoadHTML(ctx context.Context, subdomain string) (string, error)
	Remove(ctx context.Context, subdomain string) error
	IsManaged(siteURL string) bool
}

// EngineConfig holds the business settings the dialogue depends on.
type EngineConfig struct {
	ActivationSecret string
	PaymentLink      string
	DraftTTL         time.Duration
	// Model is passed to the LLM for active-mode edits.
	Model          string
	ProjectPrefix  string
	UpsellScript   string
	PremiumContact string
	HistoryLimit   int
}

const (
	defaultDraftTTL     = 48 * time.Hour
	defaultHistoryLimit = 10
	initialDraftLabel   = "initial draft"
	siteEditLabel       = "site edit"
)

// StepResult is the outcome of one engine step. When Persist is false the
// stored conversation must be left untouched.
type StepResult struct {
	Reply          string
	Conversation   *Conversation
	Persist        bool
	CustomerStatus customers.Status
}

// Engine runs the per-phone onboarding state machine and the active-mode
// site-edit protocol.
type Engine struct {
	store     Store
	extractor Extractor
	llm       LLMClient
	generator *sitegen.Generator
	sites     SitePublisher
	states    map[State]StateDef
	cfg       EngineConfig
	logger    *logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(store Store, extractor Extractor, llm LLMClient, generator *sitegen.Generator, sites SitePublisher, cfg EngineConfig, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if extractor == nil {
		panic("conversation: extractor cannot be nil")
	}
	if sites == nil {
		panic("conversation: site publisher cannot be nil")
	}
	if generator == nil {
		generator = sitegen.NewGenerator()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = defaultDraftTTL
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	cfg.ActivationSecret = strings.TrimSpace(cfg.ActivationSecret)

	e := &Engine{
		store:     store,
		extractor: extractor,
		llm:       llm,
		generator: generator,
		sites:     sites,
		states:    defaultStates(),
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EntryPrompt is the message that opens onboarding.
func (e *Engine) EntryPrompt() string {
	return entryPrompt
}

// Step advances conv by one inbound message. An error means the step was
// aborted and nothing should be persisted.
func (e *Engine) Step(ctx context.Context, conv *Conversation, message string) (*StepResult, error) {
	if conv == nil {
		return nil, errors.New("conversation: step requires a conversation")
	}
	ctx, span := engineTracer.Start(ctx, "conversation.step", trace.WithAttributes(
		attribute.String("conversation.state", string(conv.State)),
	))
	defer span.End()

	res, err := e.step(ctx, conv.clone(), message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveStepError(string(conv.State))
		return nil, err
	}
	if res.Persist {
		e.metrics.ObserveTransition(string(conv.State), string(res.Conversation.State))
		span.SetAttributes(attribute.String("conversation.next_state", string(res.Conversation.State)))
	}
	return res, nil
}

func (e *Engine) step(ctx context.Context, conv *Conversation, message string) (*StepResult, error) {
	logger := e.logger.With("phone_last4", logging.PhoneLast4(conv.Phone), "state", conv.State)

	if conv.State == StateActive {
		return e.stepActive(ctx, conv, message)
	}

	def, ok := e.states[conv.State]
	if !ok || def.Next == nil {
		logger.Warn("unknown conversation state, resetting to entry")
		conv.State = EntryState
		return &StepResult{Reply: entryPrompt, Conversation: conv, Persist: true}, nil
	}

	rejected := &StepResult{Reply: def.Fallback, Conversation: conv, Persist: false}
	if def.Validate != nil && !def.Validate(message) {
		return rejected, nil
	}

	t := &turn{conv: conv, from: conv.State, message: strings.TrimSpace(message)}
	if def.Extract != nil {
		value, err := e.extract(ctx, t.message, *def.Extract)
		if err != nil {
			return nil, err
		}
		if value == "" {
			return rejected, nil
		}
		t.value = value
	}

	next := def.Next(e, t)
	if def.OnLeave != nil {
		def.OnLeave(t)
	}

	if def.GenerateSite {
		if err := e.generateSite(ctx, t, def.Extract); err != nil {
			return nil, err
		}
	} else if def.Extract != nil {
		t.conv.setField(def.Extract.Field, t.value)
	}

	if next == StateActive {
		e.markPaid(t.conv)
		t.status = customers.StatusLaunched
		e.metrics.ObserveActivation("password")
	}
	t.conv.State = next

	reply := e.states[next].Prompt(e, t)
	logger.Info("conversation advanced", "next_state", next)
	return &StepResult{
		Reply:          reply,
		Conversation:   t.conv,
		Persist:        true,
		CustomerStatus: t.status,
	}, nil
}

func (e *Engine) extract(ctx context.Context, message string, spec ExtractSpec) (string, error) {
	if !spec.Smart {
		return localRule(spec.Field)(message), nil
	}
	value, err := e.extractor.Extract(ctx, message, spec.Field)
	if err != nil {
		return "", fmt.Errorf("conversation: extraction failed: %w", err)
	}
	return strings.TrimSpace(value), nil
}

// generateSite persists the collected field, renders the draft from the
// stored profile and publishes it.
func (e *Engine) generateSite(ctx context.Context, t *turn, spec *ExtractSpec) error {
	phone := t.conv.Phone
	if spec != nil {
		if err := e.store.SetField(ctx, phone, spec.Field, t.value); err != nil {
			return fmt.Errorf("conversation: persist %s: %w", spec.Field, err)
		}
	}
	fresh, err := e.store.Get(ctx, phone)
	if err != nil {
		return fmt.Errorf("conversation: reload before generate: %w", err)
	}
	fresh.State = t.conv.State
	t.conv = fresh

	subdomain, err := e.allocateSubdomain(ctx, fresh)
	if err != nil {
		return err
	}
	doc, err := e.generator.Render(sitegen.Profile{
		BusinessName:  fresh.SiteName,
		Services:      sitegen.SplitServices(fresh.SiteType),
		BusinessPhone: fresh.ContactPhone,
	})
	if err != nil {
		return fmt.Errorf("conversation: render site: %w", err)
	}

	res := e.sites.Publish(ctx, deploy.PublishRequest{
		Phone:     phone,
		Subdomain: subdomain,
		HTML:      doc,
		Label:     initialDraftLabel,
		Deploy:    true,
	})

	expires := e.now().Add(e.cfg.DraftTTL)
	t.conv.SiteURL = res.URL
	t.conv.SiteSubdomain = subdomain
	t.conv.SiteHTML = doc
	t.conv.SiteDeleted = false
	t.conv.ExpiresAt = &expires
	t.status = customers.StatusBuilding
	if res.Failed {
		t.status = customers.StatusDeployFailed
	}
	return nil
}

// allocateSubdomain slugs the business name and disambiguates it with the
// phone's last four digits when another phone already owns it.
func (e *Engine) allocateSubdomain(ctx context.Context, conv *Conversation) (string, error) {
	suffix := logging.PhoneLast4(conv.Phone)
	base := sitegen.Slug(conv.SiteName)
	if base == "" {
		base = sitegen.Slug("site " + suffix)
	}
	owner, err := e.store.SubdomainOwner(ctx, base)
	if err != nil {
		return "", fmt.Errorf("conversation: subdomain lookup: %w", err)
	}
	if owner == "" || owner == conv.Phone {
		return base, nil
	}
	trimmed := base
	if limit := sitegen.MaxSlugLength - len(suffix) - 1; len(trimmed) > limit {
		trimmed = strings.TrimRight(trimmed[:limit], "-")
	}
	return trimmed + "-" + suffix, nil
}

func (e *Engine) markPaid(conv *Conversation) {
	now := e.now()
	conv.PaidAt = &now
	conv.ExpiresAt = nil
}

func (e *Engine) isSecret(message string) bool {
	if e.cfg.ActivationSecret == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(message), e.cfg.ActivationSecret)
}
