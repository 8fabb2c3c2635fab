package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/crmflow/core"
)

// Webhook action names.
const (
	WebhookPost = "post"
	WebhookGet  = "get"
)

// WebhookOptions configures the generic HTTP webhook adapter.
type WebhookOptions struct {
	// URL is the remote endpoint. Required.
	URL string

	// Headers are attached to every request (e.g. auth tokens).
	Headers map[string]string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// Webhook is a generic connector for services without a dedicated adapter:
// post sends the step params as a JSON body, get issues a plain GET.
type Webhook struct {
	opts WebhookOptions
}

var _ core.Integration = (*Webhook)(nil)

// NewWebhook constructs the generic webhook adapter.
func NewWebhook(optFns ...func(o *WebhookOptions)) *Webhook {
	opts := WebhookOptions{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{opts: opts}
}

// ID implements core.Integration.
func (w *Webhook) ID() string { return "webhook" }

// Actions implements core.Integration.
func (w *Webhook) Actions() []string { return []string{WebhookPost, WebhookGet} }

// Execute implements core.Integration.
func (w *Webhook) Execute(ctx context.Context, action string, params map[string]any) (*core.IntegrationResult, error) {
	if w.opts.URL == "" {
		return &core.IntegrationResult{Success: false, Error: "webhook: URL not configured"}, nil
	}

	var req *http.Request
	var err error
	switch action {
	case WebhookPost:
		var body []byte
		body, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, w.opts.URL, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	case WebhookGet:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, w.opts.URL, nil)
	default:
		return &core.IntegrationResult{Success: false, Error: fmt.Sprintf("webhook: unsupported action %q", action)}, nil
	}
	if err != nil {
		return nil, err
	}
	for k, v := range w.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook %s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	data := map[string]any{"status_code": resp.StatusCode}
	var decoded map[string]any
	if json.Unmarshal(raw, &decoded) == nil {
		data["body"] = decoded
	} else if len(raw) > 0 {
		data["body"] = string(raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &core.IntegrationResult{Success: false, Data: data, Error: fmt.Sprintf("webhook returned status %d", resp.StatusCode)}, nil
	}
	return &core.IntegrationResult{Success: true, Data: data}, nil
}

// TestConnection implements core.Integration with a GET probe.
func (w *Webhook) TestConnection(ctx context.Context) error {
	if w.opts.URL == "" {
		return fmt.Errorf("webhook: URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.opts.URL, nil)
	if err != nil {
		return err
	}
	resp, err := w.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
