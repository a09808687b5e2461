package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Slack posts messages to an incoming webhook.
type Slack struct {
	webhookURL string
	http       *http.Client
}

// NewSlack creates a webhook notifier. A nil client gets a 10 second timeout.
func NewSlack(webhookURL string, client *http.Client) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{webhookURL: webhookURL, http: client}
}

func (s *Slack) Notify(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body)
	if msg.Severity == SeverityHigh {
		text = ":warning: " + text
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
