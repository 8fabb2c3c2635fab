package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/crmflow/core"
)

// Slack action names.
const (
	SlackSendMessage        = "send_message"
	SlackSendChannelMessage = "send_channel_message"
)

// SlackOptions configures the Slack adapter.
type SlackOptions struct {
	// WebhookURL is the Slack incoming-webhook endpoint. Required.
	WebhookURL string

	// DefaultChannel is used by send_channel_message when the step params
	// omit a channel.
	DefaultChannel string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// Slack posts messages to a Slack incoming webhook.
type Slack struct {
	opts SlackOptions
}

var _ core.Integration = (*Slack)(nil)

// NewSlack constructs the Slack adapter.
func NewSlack(optFns ...func(o *SlackOptions)) *Slack {
	opts := SlackOptions{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{opts: opts}
}

// ID implements core.Integration.
func (s *Slack) ID() string { return "slack" }

// Actions implements core.Integration.
func (s *Slack) Actions() []string {
	return []string{SlackSendMessage, SlackSendChannelMessage}
}

// Execute implements core.Integration. The "message" param is required;
// send_channel_message additionally resolves a channel from params or the
// configured default.
func (s *Slack) Execute(ctx context.Context, action string, params map[string]any) (*core.IntegrationResult, error) {
	if s.opts.WebhookURL == "" {
		return &core.IntegrationResult{Success: false, Error: "slack: webhook URL not configured"}, nil
	}
	message, _ := params["message"].(string)
	if message == "" {
		return &core.IntegrationResult{Success: false, Error: "slack: missing required param \"message\""}, nil
	}

	payload := map[string]any{"text": message}
	if action == SlackSendChannelMessage {
		channel, _ := params["channel"].(string)
		if channel == "" {
			channel = s.opts.DefaultChannel
		}
		if channel == "" {
			return &core.IntegrationResult{Success: false, Error: "slack: missing required param \"channel\""}, nil
		}
		payload["channel"] = channel
	}

	if err := s.post(ctx, payload); err != nil {
		return nil, fmt.Errorf("slack %s: %w", action, err)
	}
	return &core.IntegrationResult{Success: true, Data: map[string]any{"status": "sent"}}, nil
}

// TestConnection implements core.Integration by delivering a harmless test
// message to the webhook.
func (s *Slack) TestConnection(ctx context.Context) error {
	if s.opts.WebhookURL == "" {
		return fmt.Errorf("slack: webhook URL not configured")
	}
	return s.post(ctx, map[string]any{"text": "crmflow connection test"})
}

func (s *Slack) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
