package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_CannedResponse(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("hello", "hi there")

	resp, err := m.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Text: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestMockModel_EchoFallback(t *testing.T) {
	m := NewMockModel("test-model")

	resp, err := m.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Text: "unseen prompt"}},
	})

	require.NoError(t, err)
	assert.Contains(t, resp.Text, "unseen prompt")
}

func TestMockModel_ScriptedError(t *testing.T) {
	m := NewMockModel("test-model")
	m.FailWith(errors.New("rate limited"))

	_, err := m.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Text: "hello"}},
	})

	assert.EqualError(t, err, "rate limited")
}

func TestMockModel_RecordsCalls(t *testing.T) {
	m := NewMockModel("test-model")

	_, err := m.Complete(context.Background(), Request{
		Instructions: "be brief",
		Messages:     []Message{{Role: "user", Text: "q"}},
	})
	require.NoError(t, err)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "be brief", calls[0].Instructions)
}

func TestMockModel_NoMessages(t *testing.T) {
	m := NewMockModel("test-model")

	_, err := m.Complete(context.Background(), Request{})

	assert.Error(t, err)
}
