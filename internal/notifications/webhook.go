package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookChannel posts a JSON document per message.
type WebhookChannel struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

type webhookBody struct {
	Event     Event    `json:"event"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Tags      []string `json:"tags,omitempty"`
	Priority  string   `json:"priority,omitempty"`
	Payload   Payload  `json:"payload,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// NewWebhookChannel targets endpoint with JSON POSTs.
func NewWebhookChannel(endpoint string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookChannel{endpoint: endpoint, client: client, now: time.Now}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookBody{
		Event:     msg.Event,
		Title:     msg.Title,
		Message:   msg.Body,
		Tags:      msg.Tags,
		Priority:  msg.Priority,
		Payload:   msg.Payload,
		Timestamp: w.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
