package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hupe1980/crmflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIntegration struct {
	mu    sync.Mutex
	calls int
}

func (s *stubIntegration) ID() string        { return "stub" }
func (s *stubIntegration) Actions() []string { return []string{"ping"} }

func (s *stubIntegration) Execute(context.Context, string, map[string]any) (*core.IntegrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &core.IntegrationResult{Success: true}, nil
}

func (s *stubIntegration) TestConnection(context.Context) error { return nil }

func TestRegistry_UnknownIntegrationFailsFast(t *testing.T) {
	r := NewRegistry(nil)

	res, err := r.Execute(context.Background(), "nope", "ping", nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown integration")
}

func TestRegistry_UnsupportedActionFailsFast(t *testing.T) {
	stub := &stubIntegration{}
	r := NewRegistry(nil)
	r.Register(stub)

	res, err := r.Execute(context.Background(), "stub", "explode", nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unsupported integration action")
	// The adapter itself was never invoked.
	assert.Zero(t, stub.calls)
}

func TestRegistry_Dispatch(t *testing.T) {
	stub := &stubIntegration{}
	r := NewRegistry(nil)
	r.Register(stub)

	res, err := r.Execute(context.Background(), "stub", "ping", nil)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, stub.calls)
}

func TestSlack_SendMessage(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlack(func(o *SlackOptions) { o.WebhookURL = srv.URL })

	res, err := s.Execute(context.Background(), SlackSendMessage, map[string]any{"message": "deal won"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "deal won", received["text"])
}

func TestSlack_MissingMessageParam(t *testing.T) {
	s := NewSlack(func(o *SlackOptions) { o.WebhookURL = "http://localhost" })

	res, err := s.Execute(context.Background(), SlackSendMessage, map[string]any{})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "message")
}

func TestSlack_ChannelMessageUsesDefaultChannel(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	s := NewSlack(func(o *SlackOptions) {
		o.WebhookURL = srv.URL
		o.DefaultChannel = "#sales"
	})

	res, err := s.Execute(context.Background(), SlackSendChannelMessage, map[string]any{"message": "hi"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "#sales", received["channel"])
}

func TestSlack_RemoteErrorSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSlack(func(o *SlackOptions) { o.WebhookURL = srv.URL })

	_, err := s.Execute(context.Background(), SlackSendMessage, map[string]any{"message": "hi"})

	assert.Error(t, err)
}

func TestWebhook_PostSendsParams(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	wh := NewWebhook(func(o *WebhookOptions) { o.URL = srv.URL })

	res, err := wh.Execute(context.Background(), WebhookPost, map[string]any{"lead_id": "l-1"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "l-1", received["lead_id"])
	assert.Equal(t, 200, res.Data["status_code"])
}

func TestWebhook_NonSuccessStatusIsStructuredFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	wh := NewWebhook(func(o *WebhookOptions) { o.URL = srv.URL })

	res, err := wh.Execute(context.Background(), WebhookGet, nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "404")
}
