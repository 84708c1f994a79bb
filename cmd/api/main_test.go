package main

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

type noopHandler struct{}

func (noopHandler) Handle(context.Context, conversation.InboundMessage) error { return nil }

func TestNewServerTimeouts(t *testing.T) {
	srv := newServer(":0", http.NotFoundHandler())
	if srv.Addr != ":0" {
		t.Fatalf("unexpected addr %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout == 0 || srv.WriteTimeout == 0 || srv.IdleTimeout == 0 {
		t.Fatalf("expected all timeouts to be set: %+v", srv)
	}
}

func TestWaitForWorkerNil(t *testing.T) {
	if !waitForWorker(nil, time.Millisecond, logging.NewWithWriter("error", io.Discard)) {
		t.Fatalf("expected nil worker to count as stopped")
	}
}

func TestWaitForWorkerStops(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	queue := conversation.NewMemoryQueue(1)
	worker := conversation.NewWorker(noopHandler{}, queue, logger)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	cancel()

	if !waitForWorker(worker, 5*time.Second, logger) {
		t.Fatalf("expected worker to stop after cancel")
	}
}
