package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-resty/resty/v2"

	httpmiddleware "github.com/wolfman30/marco-site-builder/internal/http/middleware"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("EXPIRY_SWEEP_URL", "")
	t.Setenv("ADMIN_JWT_SECRET", "s")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error without sweep url")
	}

	t.Setenv("EXPIRY_SWEEP_URL", "https://api.example.com/admin/expiry-sweep")
	t.Setenv("SWEEP_TIMEOUT", "soon")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error for bad timeout")
	}

	t.Setenv("SWEEP_TIMEOUT", "10s")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.timeout != 10*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.timeout)
	}
}

func TestHandleCallsSweepWithAdminToken(t *testing.T) {
	const secret = "lambda-secret"
	var gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := httpmiddleware.ParseAdminToken(secret, raw); err != nil {
			t.Errorf("invalid admin token: %v", err)
		}
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"examined":4,"expired":3,"failed":1}`))
	}))
	defer srv.Close()

	cfg := config{sweepURL: srv.URL, adminSecret: secret, timeout: time.Second}
	result, err := handle(context.Background(), cfg, resty.New(), events.CloudWatchEvent{ID: "evt-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Examined != 4 || result.Expired != 3 || result.Failed != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if gotRequestID != "evt-1" {
		t.Fatalf("expected request id to carry the event id, got %q", gotRequestID)
	}
}

func TestHandleReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sweep failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config{sweepURL: srv.URL, adminSecret: "s", timeout: time.Second}
	if _, err := handle(context.Background(), cfg, resty.New(), events.CloudWatchEvent{}); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}
