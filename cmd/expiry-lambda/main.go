package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-resty/resty/v2"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
	httpmiddleware "github.com/wolfman30/marco-site-builder/internal/http/middleware"
)

const tokenTTL = 5 * time.Minute

type config struct {
	sweepURL    string
	adminSecret string
	timeout     time.Duration
}

func loadConfig() (config, error) {
	sweepURL := strings.TrimSpace(os.Getenv("EXPIRY_SWEEP_URL"))
	if sweepURL == "" {
		return config{}, errors.New("EXPIRY_SWEEP_URL is required")
	}
	secret := strings.TrimSpace(os.Getenv("ADMIN_JWT_SECRET"))
	if secret == "" {
		return config{}, errors.New("ADMIN_JWT_SECRET is required")
	}

	timeout := 60 * time.Second
	if raw := strings.TrimSpace(os.Getenv("SWEEP_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return config{}, fmt.Errorf("invalid SWEEP_TIMEOUT: %w", err)
		}
		timeout = parsed
	}

	return config{sweepURL: sweepURL, adminSecret: secret, timeout: timeout}, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	client := resty.New().SetTimeout(cfg.timeout)
	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (conversation.SweepResult, error) {
		return handle(ctx, cfg, client, evt)
	})
}

// handle triggers one expiry sweep on the API, authenticating with a
// short-lived admin token.
func handle(ctx context.Context, cfg config, client *resty.Client, evt events.CloudWatchEvent) (conversation.SweepResult, error) {
	token, err := httpmiddleware.MintAdminToken(cfg.adminSecret, "expiry-lambda", tokenTTL)
	if err != nil {
		return conversation.SweepResult{}, fmt.Errorf("mint admin token: %w", err)
	}

	var result conversation.SweepResult
	resp, err := client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Request-ID", evt.ID).
		SetResult(&result).
		Post(cfg.sweepURL)
	if err != nil {
		return conversation.SweepResult{}, fmt.Errorf("expiry sweep request: %w", err)
	}
	if resp.IsError() {
		return conversation.SweepResult{}, fmt.Errorf("expiry sweep returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	fmt.Printf("expiry sweep done: examined=%d expired=%d failed=%d\n", result.Examined, result.Expired, result.Failed)
	return result, nil
}
