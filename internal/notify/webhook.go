package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ironwill-app/ironwill/internal/platform/timeouts"
)

// Webhook posts notification decisions as JSON to a configured endpoint.
type Webhook struct {
	endpoint string
	client   *http.Client
}

// NewWebhook creates a webhook notifier for the given endpoint.
func NewWebhook(endpoint string, client *http.Client) (*Webhook, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if client == nil {
		client = &http.Client{Timeout: timeouts.Notify}
	}
	return &Webhook{endpoint: endpoint, client: client}, nil
}

// Notify posts one notification decision.
func (w *Webhook) Notify(ctx context.Context, event Event) error {
	if w == nil || w.endpoint == "" {
		return fmt.Errorf("webhook notifier is not configured")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := w.client.Do(request)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("notification endpoint returned %d", response.StatusCode)
	}
	return nil
}
