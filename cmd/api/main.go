package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/marco-site-builder/cmd/mainconfig"
	"github.com/wolfman30/marco-site-builder/internal/app/bootstrap"
	appconfig "github.com/wolfman30/marco-site-builder/internal/config"
	"github.com/wolfman30/marco-site-builder/internal/conversation"
	"github.com/wolfman30/marco-site-builder/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting marco API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.Build(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to wire service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// The memory queue is only reachable in process, so its worker runs here.
	if app.InlineWorker {
		app.Worker.Start(ctx)
		logger.Info("inline conversation worker started", "workers", cfg.WorkerCount)
	}

	srv := newServer(":"+cfg.Port, app.Handler)

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancel()
	if app.InlineWorker {
		waitForWorker(app.Worker, 15*time.Second, logger)
	}
	logger.Info("server stopped")
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// waitForWorker blocks until in-flight messages finish or the timeout passes.
func waitForWorker(worker *conversation.Worker, timeout time.Duration, logger *logging.Logger) bool {
	if worker == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline conversation worker stopped")
		return true
	case <-time.After(timeout):
		logger.Warn("inline conversation worker shutdown timed out")
		return false
	}
}
