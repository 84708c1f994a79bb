package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/marco-site-builder/internal/config"
	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

const (
	LLMProviderBedrock = "bedrock"
	LLMProviderOpenAI  = "openai"
	LLMProviderGemini  = "gemini"
)

// LLM bundles the selected client with a release hook for clients that hold
// connections.
type LLM struct {
	Client conversation.LLMClient
	Close  func()
}

// BuildLLMClient selects the configured provider. Any other configured
// provider becomes a fallback. A nil Client means no provider has credentials;
// callers then fall back to rule extraction and disable site edits.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (LLM, error) {
	if cfg == nil {
		return LLM{}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	build := func(provider string) (conversation.LLMClient, error) {
		switch provider {
		case LLMProviderBedrock:
			if strings.TrimSpace(cfg.BedrockModelID) == "" {
				return nil, nil
			}
			return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
		case LLMProviderOpenAI:
			if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
				return nil, nil
			}
			return conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		case LLMProviderGemini:
			if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
				return nil, nil
			}
			client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				return nil, err
			}
			closers = append(closers, func() { _ = client.Close() })
			return client, nil
		default:
			return nil, fmt.Errorf("bootstrap: unknown llm provider %q", provider)
		}
	}

	primaryName := cfg.LLMProvider
	if primaryName == "" {
		primaryName = LLMProviderBedrock
	}
	primary, err := build(primaryName)
	if err != nil {
		return LLM{}, err
	}

	var fallback conversation.LLMClient
	var fallbackName string
	for _, name := range []string{LLMProviderBedrock, LLMProviderOpenAI, LLMProviderGemini} {
		if name == primaryName {
			continue
		}
		client, err := build(name)
		if err != nil {
			logger.Warn("fallback llm unavailable", "provider", name, "error", err)
			continue
		}
		if client != nil {
			fallback, fallbackName = client, name
			break
		}
	}

	release := func() {
		for _, c := range closers {
			c()
		}
	}

	switch {
	case primary != nil && fallback != nil:
		logger.Info("llm configured", "provider", primaryName, "fallback", fallbackName)
		return LLM{Client: conversation.NewFallbackLLMClient(primary, fallback, logger), Close: release}, nil
	case primary != nil:
		logger.Info("llm configured", "provider", primaryName)
		return LLM{Client: primary, Close: release}, nil
	case fallback != nil:
		logger.Warn("primary llm not configured; using fallback only", "provider", primaryName, "fallback", fallbackName)
		return LLM{Client: fallback, Close: release}, nil
	default:
		logger.Warn("no llm provider configured; using rule extraction and disabling site edits")
		return LLM{Close: release}, nil
	}
}
