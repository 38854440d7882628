package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goslack "github.com/slack-go/slack"
)

// Client is a thin wrapper around the slack-go incoming-webhook API.
type Client struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Slack webhook client.
func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default().With("component", "slack-client"),
	}
}

// NewClientWithHTTPClient creates a webhook client with a custom transport.
// Useful for testing with a mock server.
func NewClientWithHTTPClient(webhookURL string, httpClient *http.Client) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     slog.Default().With("component", "slack-client"),
	}
}

// PostMessage sends one markdown text message to the webhook.
func (c *Client) PostMessage(ctx context.Context, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg := &goslack.WebhookMessage{Text: text}
	if err := goslack.PostWebhookCustomHTTPContext(ctx, c.webhookURL, c.httpClient, msg); err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	return nil
}
