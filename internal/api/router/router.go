package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/marco-site-builder/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/marco-site-builder/internal/http/middleware"
	"github.com/wolfman30/marco-site-builder/internal/messaging"
	"github.com/wolfman30/marco-site-builder/internal/payments"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

const (
	defaultWaitlistRate  = 1.0
	defaultWaitlistBurst = 5
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Health             *handlers.HealthHandler
	MessagingHandler   *messaging.Handler
	StripeWebhook      *payments.StripeWebhookHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminSites         *handlers.AdminSitesHandler
	Waitlist           *handlers.WaitlistHandler
	Sites              *handlers.SitesHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Waitlist signup limits per client IP (requests/second and burst).
	WaitlistRate  float64
	WaitlistBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}

	// Public endpoints (webhooks, health checks, sites)
	r.Group(func(public chi.Router) {
		public.Get("/health", health.Live)
		public.Get("/ready", health.Ready)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.MessagingHandler != nil {
			public.Route("/webhooks", func(wh chi.Router) {
				wh.Post("/twilio", cfg.MessagingHandler.TwilioWebhook)
				wh.Post("/telnyx", cfg.MessagingHandler.TelnyxWebhook)
			})
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
		if cfg.Waitlist != nil {
			rate, burst := cfg.WaitlistRate, cfg.WaitlistBurst
			if rate <= 0 {
				rate = defaultWaitlistRate
			}
			if burst <= 0 {
				burst = defaultWaitlistBurst
			}
			public.With(httpmiddleware.RateLimit(rate, burst)).Post("/waitlist", cfg.Waitlist.Join)
		}
		if cfg.Sites != nil {
			public.Get("/sites/{subdomain}", cfg.Sites.Serve)
		}
	})

	// Admin routes are only mounted when a signing secret is configured.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminConversations != nil {
				admin.Route("/conversations/{phone}", func(conv chi.Router) {
					conv.Get("/", cfg.AdminConversations.GetConversation)
					conv.Post("/activate", cfg.AdminConversations.Activate)
					conv.Post("/reset", cfg.AdminConversations.Reset)
					conv.Post("/enter", cfg.AdminConversations.Enter)
				})
			}
			if cfg.AdminSites != nil {
				admin.Get("/projects", cfg.AdminSites.ListProjects)
				admin.Post("/expiry-sweep", cfg.AdminSites.RunExpirySweep)
			}
		})
	}

	return r
}
