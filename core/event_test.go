package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEntityEvent(t *testing.T) {
	ev := NewEntityEvent("created", "leads", "abc-123", map[string]any{"name": "Bob"}, "user-1")

	assert.Equal(t, "leads.created", ev.Type)
	assert.Equal(t, "leads", ev.Entity)
	assert.Equal(t, "abc-123", ev.EntityID)
	assert.Equal(t, "Bob", ev.Data["name"])
	assert.Equal(t, "user-1", ev.UserID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestNewEvent_NilData(t *testing.T) {
	ev := NewEvent("deals.updated", nil)

	assert.NotNil(t, ev.Data)
	assert.Equal(t, "deals.updated", ev.Type)
}
