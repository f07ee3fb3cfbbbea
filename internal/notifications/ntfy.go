package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// NtfyChannel posts plain-text messages to an ntfy topic URL.
type NtfyChannel struct {
	endpoint string
	client   *http.Client
}

// NewNtfyChannel targets the full topic URL, for example https://ntfy.sh/mytopic.
func NewNtfyChannel(endpoint string, client *http.Client) *NtfyChannel {
	if client == nil {
		client = http.DefaultClient
	}
	return &NtfyChannel{endpoint: endpoint, client: client}
}

func (n *NtfyChannel) Name() string { return "ntfy" }

func (n *NtfyChannel) Send(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority != "" && msg.Priority != "default" {
		req.Header.Set("Priority", msg.Priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
