// Package api is the HTTP ingress: one webhook endpoint per source, a
// manual enrichment endpoint, liveness, and an operator debug surface.
//
// Handlers verify the request signature, parse only the envelope needed to
// route the event, and delegate to the staging pipeline. Everything beyond
// staging happens in the background workers; a webhook response never waits
// on the CRM or the LLM.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/revcrew/leadflow/pkg/config"
	"github.com/revcrew/leadflow/pkg/events"
	"github.com/revcrew/leadflow/pkg/idempotency"
	"github.com/revcrew/leadflow/pkg/queue"
	"github.com/revcrew/leadflow/pkg/signature"
)

// PoolHealthReporter exposes the worker pool's health snapshot to the
// debug surface. A nil reporter omits the pool section of /debug/status.
type PoolHealthReporter interface {
	Health() *queue.PoolHealth
}

// Server is the ingress HTTP server.
type Server struct {
	cfg    *config.Config
	events *events.Store
	guard  *idempotency.Guard
	queue  *queue.Queue
	pool   PoolHealthReporter

	echo       *echo.Echo
	httpServer *http.Server
	logger     *slog.Logger

	calendarVerifier signature.Verifier
	meetingVerifier  signature.Verifier
	supportVerifier  signature.Verifier
	enrichVerifier   signature.Verifier
}

// NewServer wires the ingress routes over the staging dependencies.
// pool may be nil.
func NewServer(cfg *config.Config, evs *events.Store, guard *idempotency.Guard, q *queue.Queue, pool PoolHealthReporter) *Server {
	s := &Server{
		cfg:    cfg,
		events: evs,
		guard:  guard,
		queue:  q,
		pool:   pool,
		echo:   echo.New(),
		logger: slog.Default().With("component", "api"),

		calendarVerifier: signature.NewHMAC(cfg.CalendarWebhookSecret),
		meetingVerifier:  signature.NewSharedSecret(cfg.MeetingWebhookSecret),
		supportVerifier:  signature.NewHMAC(cfg.SupportWebhookSecret),
		enrichVerifier:   signature.NewSharedSecret(cfg.EnrichAPIKey),
	}

	s.echo.HTTPErrorHandler = errorHandler
	s.echo.Use(securityHeaders())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST("/webhooks/calendar", s.calendarWebhookHandler)
	s.echo.POST("/webhooks/meetings", s.meetingWebhookHandler)
	s.echo.POST("/webhooks/support", s.supportWebhookHandler)
	s.echo.POST("/enrich/lead", s.enrichLeadHandler)

	s.echo.GET("/healthz", s.healthzHandler)

	// Debug routes are always registered; the handlers 404 unless
	// ALLOW_DEBUG_ENDPOINTS is set, so the surface is invisible in
	// production either way.
	s.echo.GET("/debug/events/:id", s.getDebugEventHandler)
	s.echo.GET("/debug/idem/*", s.getDebugIdemHandler)
	s.echo.GET("/debug/status", s.getDebugStatusHandler)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
