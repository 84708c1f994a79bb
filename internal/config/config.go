package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	UseMemoryQueue     bool
	WorkerCount        int
	DatabaseURL        string
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Onboarding
	EntryMode             string
	ActivationSecret      string
	ActivationSecretParam string
	PaymentLink           string
	DraftTTL              time.Duration
	UpsellScript          string
	PremiumContact        string

	// Carriers
	DefaultCarrier           string
	TwilioAccountSID         string
	TwilioAuthToken          string
	TwilioFromNumber         string
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxFromNumber         string
	TelnyxWebhookSecret      string

	// AWS
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string

	// LLM
	LLMProvider    string
	BedrockModelID string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	GeminiAPIKey   string
	GeminiModelID  string
	LLMTimeout     time.Duration

	// Redis
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	InboundDedupeTTL time.Duration

	// Sites and deployment
	SitesDir                string
	SitesBucket             string
	CloudflareAccountID     string
	CloudflareAPIToken      string
	CloudflareProjectPrefix string
	ManagedHostSuffix       string

	// Payments and notifications
	StripeWebhookSecret string
	SendGridAPIKey      string
	SendGridFromEmail   string
	EmailFromName       string
	SESFromEmail        string
	OperatorEmail       string
	OperatorPhone       string

	// Scheduled expiry sweep
	ExpirySweepURL string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue:     getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:        getEnvAsInt("WORKER_COUNT", 1),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		EntryMode:             strings.ToLower(strings.TrimSpace(getEnv("ENTRY_MODE", "open"))),
		ActivationSecret:      getEnv("ACTIVATION_SECRET", "chowder"),
		ActivationSecretParam: getEnv("ACTIVATION_SECRET_PARAM", ""),
		PaymentLink:           getEnv("PAYMENT_LINK", "https://buy.stripe.com/marco-site"),
		DraftTTL:              getEnvAsDuration("DRAFT_TTL", 48*time.Hour),
		UpsellScript:          getEnv("UPSELL_SCRIPT", ""),
		PremiumContact:        getEnv("PREMIUM_CONTACT", ""),

		DefaultCarrier:           strings.ToLower(strings.TrimSpace(getEnv("DEFAULT_CARRIER", "twilio"))),
		TwilioAccountSID:         getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:          getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:         getEnv("TWILIO_FROM_NUMBER", ""),
		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),
		TelnyxWebhookSecret:      getEnv("TELNYX_WEBHOOK_SECRET", ""),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),

		LLMProvider:    strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		InboundDedupeTTL: getEnvAsDuration("INBOUND_DEDUPE_TTL", 24*time.Hour),

		SitesDir:                getEnv("SITES_DIR", "data/sites"),
		SitesBucket:             getEnv("SITES_BUCKET", ""),
		CloudflareAccountID:     getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		CloudflareAPIToken:      getEnv("CLOUDFLARE_API_TOKEN", ""),
		CloudflareProjectPrefix: getEnv("CLOUDFLARE_PROJECT_PREFIX", ""),
		ManagedHostSuffix:       getEnv("MANAGED_HOST_SUFFIX", ".pages.dev"),

		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Marco"),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		OperatorEmail:       getEnv("OPERATOR_EMAIL", ""),
		OperatorPhone:       getEnv("OPERATOR_PHONE", ""),

		ExpirySweepURL: getEnv("EXPIRY_SWEEP_URL", ""),
	}
}

// CloudflareEnabled reports whether real deployments are configured.
func (c *Config) CloudflareEnabled() bool {
	return strings.TrimSpace(c.CloudflareAccountID) != "" && strings.TrimSpace(c.CloudflareAPIToken) != ""
}

// WaitlistMode reports whether new phones start on the waitlist.
func (c *Config) WaitlistMode() bool {
	return c.EntryMode == "waitlist"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
