// Package slack delivers best-effort chat notifications over an incoming
// webhook.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	WebhookURL string
}

// Service handles chat notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a new notification service.
// Returns nil if WebhookURL is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.WebhookURL == "" {
		return nil
	}
	return &Service{
		client: NewClient(cfg.WebhookURL),
		logger: slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return &Service{
		client: client,
		logger: slog.Default().With("component", "slack-service"),
	}
}

// severityPrefix maps a severity to a message marker.
func severityPrefix(severity string) string {
	switch severity {
	case "error":
		return ":rotating_light:"
	case "warning":
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// Notify posts a titled message.
// Fail-open: errors are logged, never returned. No retries.
func (s *Service) Notify(ctx context.Context, title, body, severity string) {
	if s == nil {
		return
	}

	text := fmt.Sprintf("%s *%s*\n%s", severityPrefix(severity), title, body)
	if err := s.client.PostMessage(ctx, text, 10*time.Second); err != nil {
		s.logger.Error("Failed to send notification",
			"title", title,
			"severity", severity,
			"error", err)
	}
}
