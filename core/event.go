package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable record describing something that happened to a CRM
// entity. Its Type follows the dotted "<entity>.<action>" convention
// (e.g. "leads.created"). After emission an event must be treated as
// read-only; the bus retains it only in a bounded diagnostic log, never as
// durable storage.
type Event struct {
	Type      string         `json:"type"`
	Entity    string         `json:"entity,omitempty"`
	EntityID  string         `json:"entity_id,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"user_id,omitempty"`
}

// NewEvent creates an event of the given type carrying the supplied payload.
// The timestamp is set to the current UTC time.
func NewEvent(eventType string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// NewEntityEvent builds an event for a concrete entity mutation. The type is
// derived as "<entity>.<action>" so that subscribers can match either the
// exact type or the "<entity>.*" pattern.
func NewEntityEvent(action, entity, entityID string, data map[string]any, userID string) Event {
	ev := NewEvent(fmt.Sprintf("%s.%s", entity, action), data)
	ev.Entity = entity
	ev.EntityID = entityID
	ev.UserID = userID
	return ev
}

// NewID generates a new unique identifier used for runs, messages and
// notifications throughout the framework.
func NewID() string { return uuid.NewString() }
