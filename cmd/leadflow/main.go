// Leadflow ingestion server — receives signed webhooks, stages events in
// Redis, and runs the background workers that sync leads into the CRM.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/revcrew/leadflow/pkg/api"
	"github.com/revcrew/leadflow/pkg/config"
	"github.com/revcrew/leadflow/pkg/crm"
	"github.com/revcrew/leadflow/pkg/enrich"
	"github.com/revcrew/leadflow/pkg/events"
	"github.com/revcrew/leadflow/pkg/idempotency"
	"github.com/revcrew/leadflow/pkg/jobs"
	"github.com/revcrew/leadflow/pkg/llm"
	"github.com/revcrew/leadflow/pkg/queue"
	"github.com/revcrew/leadflow/pkg/scraper"
	"github.com/revcrew/leadflow/pkg/signals"
	"github.com/revcrew/leadflow/pkg/slack"
	"github.com/revcrew/leadflow/pkg/store"
	"github.com/revcrew/leadflow/pkg/version"
)

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	envFile := flag.String("env-file", ".env", "Path to environment file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	podID := resolvePodID()
	slog.Info("Starting leadflow", "version", version.Full(), "pod_id", podID)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration invalid", "error", err)
		os.Exit(1)
	}

	// 2. K/V store
	kv, err := store.New(ctx, store.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()
	slog.Info("Connected to Redis", "addr", cfg.RedisAddr)

	// 3. Pipeline state
	eventStore := events.NewStore(kv, cfg.EventTTL)
	guard := idempotency.NewGuard(kv, cfg.IdempotencyTTL)
	q := queue.New(kv, cfg.IdempotencyTTL)

	// 4. Outbound clients
	crmClient, err := crm.NewClient(kv, crm.Config{
		Datacenter:   cfg.CRMDatacenter,
		ClientID:     cfg.CRMClientID,
		ClientSecret: cfg.CRMClientSecret,
		RefreshToken: cfg.CRMRefreshToken,
		DryRun:       cfg.DryRun,
		Timeout:      cfg.OutboundTimeout,
	})
	if err != nil {
		slog.Error("Failed to initialize CRM client", "error", err)
		os.Exit(1)
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:        cfg.OpenAIAPIKey,
		Model:         cfg.OpenAIModel,
		MaxInputChars: cfg.LLMMaxInputChars,
	})
	apolloClient := enrich.NewApolloClient(kv, enrich.ApolloConfig{
		APIKey:  cfg.ApolloAPIKey,
		Timeout: cfg.OutboundTimeout,
	})
	brandfetchClient := enrich.NewBrandfetchClient(enrich.BrandfetchConfig{
		APIKey:  cfg.BrandfetchAPIKey,
		Timeout: cfg.OutboundTimeout,
	})
	siteScraper := scraper.New(scraper.Config{Timeout: cfg.OutboundTimeout})
	notifier := slack.NewService(slack.ServiceConfig{WebhookURL: cfg.SlackWebhookURL})
	slog.Info("Outbound clients initialized", "dry_run", cfg.DryRun)

	// 5. Handlers and runner
	registry := jobs.NewRegistry(&jobs.Deps{
		Config:     cfg,
		Events:     eventStore,
		Guard:      guard,
		Queue:      q,
		CRM:        crmClient,
		LLM:        llmClient,
		Apollo:     apolloClient,
		Brandfetch: brandfetchClient,
		Scraper:    siteScraper,
		Detector:   signals.NewDetector(cfg.Tables),
		Notifier:   notifier,
	})
	runner := queue.NewRunner(eventStore, guard, q, registry.Dispatch, notifier, queue.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Intervals:  cfg.RetryIntervals,
	})

	// 6. Start worker pool (before HTTP server)
	workerPool := queue.NewWorkerPool(podID, kv, q, cfg.Queue, runner)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 7. Start HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, eventStore, guard, q, workerPool)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Leadflow started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: workers finish their current jobs first.
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, in-flight jobs will be retried after restart")
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
