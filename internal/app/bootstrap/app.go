package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/marco-site-builder/internal/api/router"
	"github.com/wolfman30/marco-site-builder/internal/artifacts"
	appconfig "github.com/wolfman30/marco-site-builder/internal/config"
	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/internal/customers"
	"github.com/wolfman30/marco-site-builder/internal/deploy"
	"github.com/wolfman30/marco-site-builder/internal/events"
	"github.com/wolfman30/marco-site-builder/internal/http/handlers"
	"github.com/wolfman30/marco-site-builder/internal/messaging"
	"github.com/wolfman30/marco-site-builder/internal/notify"
	"github.com/wolfman30/marco-site-builder/internal/observability/metrics"
	"github.com/wolfman30/marco-site-builder/internal/paramstore"
	"github.com/wolfman30/marco-site-builder/internal/payments"
	"github.com/wolfman30/marco-site-builder/internal/sitegen"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

const memoryQueueBuffer = 64

// App is the fully wired service shared by the API and worker binaries.
type App struct {
	Handler    http.Handler
	Worker     *conversation.Worker
	Sweeper    *conversation.Sweeper
	Processor  *conversation.Processor
	Operations *conversation.Operations
	Carriers   *messaging.Router
	Metrics    *metrics.Metrics
	// InlineWorker is set when the queue lives in process memory, so the
	// worker must run inside the API binary.
	InlineWorker bool

	closers []func()
}

// Close releases pools and clients in reverse order of creation.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build wires every component from configuration. Postgres, Redis, SQS,
// S3, SES and SSM are used only when configured; otherwise in-memory or
// local fallbacks keep the service runnable for development.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	app := &App{}
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	app.Metrics = m

	pool, err := ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fail(err)
	}
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
	}
	var sqlDB *sql.DB
	if pool != nil {
		if sqlDB, err = OpenSQL(cfg.DatabaseURL); err != nil {
			return fail(err)
		}
		app.closers = append(app.closers, func() { _ = sqlDB.Close() })
	}
	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	llm, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}
	if llm.Close != nil {
		app.closers = append(app.closers, llm.Close)
	}

	stores := buildStores(cfg, pool, sqlDB, redisClient, logger)

	carriers, reason := BuildCarrierRouter(cfg, m, logger)
	if reason != "" {
		logger.Warn("no sms carrier configured; replies will not be delivered", "reason", reason)
	}
	app.Carriers = carriers

	notifier := buildNotifier(cfg, awsCfg, carriers, logger)

	siteStore, err := buildArtifactStore(cfg, awsCfg)
	if err != nil {
		return fail(err)
	}
	deployer, err := buildDeployer(cfg, siteStore, logger)
	if err != nil {
		return fail(err)
	}
	deployOpts := []deploy.ServiceOption{
		deploy.WithFailureNotifier(notifier),
		deploy.WithMetrics(m),
		deploy.WithManagedHostSuffix(cfg.ManagedHostSuffix),
	}
	if stores.deployments != nil {
		deployOpts = append(deployOpts, deploy.WithRecorder(stores.deployments))
	}
	sites := deploy.NewService(siteStore, deployer, cfg.PublicBaseURL, logger, deployOpts...)

	var extractor conversation.Extractor = conversation.RuleExtractor{}
	if llm.Client != nil {
		extractor = conversation.NewSmartExtractor(llm.Client, "")
	}
	engine := conversation.NewEngine(stores.conversations, extractor, llm.Client, sitegen.NewGenerator(), sites, conversation.EngineConfig{
		ActivationSecret: resolveActivationSecret(ctx, cfg, awsCfg, logger),
		PaymentLink:      cfg.PaymentLink,
		DraftTTL:         cfg.DraftTTL,
		ProjectPrefix:    cfg.CloudflareProjectPrefix,
		UpsellScript:     cfg.UpsellScript,
		PremiumContact:   cfg.PremiumContact,
	}, logger, conversation.WithEngineMetrics(m))

	app.Processor = conversation.NewProcessor(stores.conversations, engine, carriers, stores.customers, logger,
		conversation.WithInboundDeduper(stores.inbound),
		conversation.WithOwnNumbers(carriers.Numbers()...),
		conversation.WithWaitlistEntry(cfg.WaitlistMode()),
		conversation.WithProcessorMetrics(m),
	)
	app.Operations = conversation.NewOperations(stores.conversations, carriers, stores.customers, logger,
		conversation.WithActivationNotifier(notifier),
		conversation.WithOperationsMetrics(m),
	)
	app.Sweeper = conversation.NewSweeper(stores.conversations, sites, carriers, stores.customers, m, logger)

	var publisher *conversation.Publisher
	if cfg.UseMemoryQueue {
		queue := conversation.NewMemoryQueue(memoryQueueBuffer)
		publisher = conversation.NewPublisher(queue, logger)
		app.Worker = conversation.NewWorker(app.Processor, queue, logger, conversation.WithWorkerCount(cfg.WorkerCount))
		app.InlineWorker = true
	} else {
		if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
			return fail(fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required when USE_MEMORY_QUEUE=false"))
		}
		queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
		publisher = conversation.NewPublisher(queue, logger)
		app.Worker = conversation.NewWorker(app.Processor, queue, logger, conversation.WithWorkerCount(cfg.WorkerCount))
	}

	var adminConversations *handlers.AdminConversationsHandler
	if stores.deployments != nil {
		adminConversations = handlers.NewAdminConversationsHandler(app.Operations, stores.conversations, stores.deployments, logger)
	} else {
		adminConversations = handlers.NewAdminConversationsHandler(app.Operations, stores.conversations, nil, logger)
	}

	var stripeWebhook *payments.StripeWebhookHandler
	if cfg.StripeWebhookSecret != "" {
		stripeWebhook = payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, app.Operations, stores.webhooks, logger)
	}

	app.Handler = router.New(&router.Config{
		Logger: logger,
		Health: handlers.NewHealthHandler(healthChecks(pool, redisClient)),
		MessagingHandler: messaging.NewHandler(messaging.HandlerConfig{
			Publisher:       publisher,
			TwilioAuthToken: cfg.TwilioAuthToken,
			TelnyxSecret:    cfg.TelnyxWebhookSecret,
			OwnNumbers:      carriers.Numbers(),
			Metrics:         m,
			Logger:          logger,
		}),
		StripeWebhook:      stripeWebhook,
		AdminConversations: adminConversations,
		AdminSites:         handlers.NewAdminSitesHandler(sites, app.Sweeper, logger),
		Waitlist:           handlers.NewWaitlistHandler(app.Operations, logger),
		Sites:              handlers.NewSitesHandler(sites, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; stripe webhook is not mounted")
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes are disabled")
	}
	logger.Info("service wired",
		"deploy_mode", sites.Mode(),
		"postgres", pool != nil,
		"redis", redisClient != nil,
		"entry_mode", cfg.EntryMode,
		"inline_worker", app.InlineWorker,
	)
	return app, nil
}

type storeSet struct {
	conversations conversation.Store
	customers     conversation.StatusMirror
	deployments   *deploy.Repository
	webhooks      events.Deduper
	inbound       events.Deduper
}

func buildStores(cfg *appconfig.Config, pool *pgxpool.Pool, sqlDB *sql.DB, redisClient *redis.Client, logger *logging.Logger) storeSet {
	var set storeSet
	if pool != nil {
		set.conversations = conversation.NewPostgresStore(pool)
		set.deployments = deploy.NewRepository(pool)
		set.webhooks = events.NewProcessedStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		set.conversations = conversation.NewMemoryStore()
		set.webhooks = events.NewMemoryDeduper()
	}
	if sqlDB != nil {
		set.customers = customers.NewPostgresRepository(sqlDB)
	} else {
		set.customers = customers.NewMemoryRepository()
	}
	if redisClient != nil {
		set.inbound = events.NewRedisDeduper(redisClient, cfg.InboundDedupeTTL)
	} else {
		set.inbound = events.NewMemoryDeduper()
	}
	return set
}

func buildArtifactStore(cfg *appconfig.Config, awsCfg aws.Config) (artifacts.Store, error) {
	if bucket := strings.TrimSpace(cfg.SitesBucket); bucket != "" {
		return artifacts.NewS3Store(s3.NewFromConfig(awsCfg), bucket), nil
	}
	store, err := artifacts.NewFileStore(cfg.SitesDir)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: sites dir: %w", err)
	}
	return store, nil
}

func buildDeployer(cfg *appconfig.Config, store artifacts.Store, logger *logging.Logger) (deploy.Deployer, error) {
	if !cfg.CloudflareEnabled() {
		return deploy.NewSimulated(store, cfg.PublicBaseURL), nil
	}
	return deploy.NewCloudflarePages(deploy.CloudflareConfig{
		AccountID:     cfg.CloudflareAccountID,
		APIToken:      cfg.CloudflareAPIToken,
		ProjectPrefix: cfg.CloudflareProjectPrefix,
	}, logger)
}

func buildNotifier(cfg *appconfig.Config, awsCfg aws.Config, carriers *messaging.Router, logger *logging.Logger) *notify.Service {
	var (
		email notify.EmailSender
		err   error
	)
	switch {
	case strings.TrimSpace(cfg.SendGridAPIKey) != "":
		email, err = notify.NewSendGridSender(cfg.SendGridAPIKey, notify.From{
			Name:    cfg.EmailFromName,
			Address: cfg.SendGridFromEmail,
		}, logger)
	case strings.TrimSpace(cfg.SESFromEmail) != "":
		email, err = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.From{
			Name:    cfg.EmailFromName,
			Address: cfg.SESFromEmail,
		}, logger)
	}
	if err != nil {
		logger.Warn("operator email disabled", "error", err)
	}
	if err != nil || email == nil {
		email = notify.NewLogEmailSender(logger)
	}
	sms := notify.NewSimpleSMSSender(func(ctx context.Context, to, body string) error {
		return carriers.Send(ctx, to, body, "")
	}, logger)
	return notify.NewService(email, sms, notify.Config{
		OperatorEmail: cfg.OperatorEmail,
		OperatorPhone: messaging.NormalizeE164(cfg.OperatorPhone),
	}, logger)
}

// resolveActivationSecret prefers the SSM parameter when one is named and
// falls back to the environment value on any failure.
func resolveActivationSecret(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) string {
	if strings.TrimSpace(cfg.ActivationSecretParam) == "" {
		return cfg.ActivationSecret
	}
	client, err := paramstore.New(ssm.NewFromConfig(awsCfg))
	if err != nil {
		logger.Warn("paramstore unavailable; using env activation secret", "error", err)
		return cfg.ActivationSecret
	}
	secret, err := paramstore.Resolve(ctx, client, cfg.ActivationSecretParam, cfg.ActivationSecret)
	if err != nil {
		logger.Warn("failed to resolve activation secret; using env value", "error", err, "param", cfg.ActivationSecretParam)
	}
	return secret
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
