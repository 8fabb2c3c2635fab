package core

import "time"

// ParticipantStatus tracks what a meeting participant is currently doing.
// Status is mutated only by the meeting orchestrator during a turn and is
// never persisted.
type ParticipantStatus string

const (
	// StatusIdle means the participant is waiting for its turn.
	StatusIdle ParticipantStatus = "idle"
	// StatusThinking means the participant's chat call is in flight.
	StatusThinking ParticipantStatus = "thinking"
	// StatusSpeaking means the participant's response is being delivered.
	StatusSpeaking ParticipantStatus = "speaking"
)

// Participant is a chat-capable identity in a meeting. The roster is built
// once per meeting session from static defaults overlaid with tenant
// customization (name, title, tone).
type Participant struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Title  string            `json:"title"`
	Status ParticipantStatus `json:"status"`
}

// MessageRole identifies the author category of a meeting message.
type MessageRole string

const (
	// RoleUser marks a message typed by the human user.
	RoleUser MessageRole = "user"
	// RoleAgent marks a message produced by an agent persona.
	RoleAgent MessageRole = "agent"
	// RoleSystem marks orchestrator-injected messages.
	RoleSystem MessageRole = "system"
)

// MeetingMessage is one entry of a meeting transcript. Messages are appended
// and never mutated; the transcript is the sole memory of "what was said".
type MeetingMessage struct {
	ID        string      `json:"id"`
	AgentID   string      `json:"agent_id,omitempty"`
	AgentName string      `json:"agent_name,omitempty"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMeetingMessage constructs a transcript entry with a fresh ID and UTC
// timestamp.
func NewMeetingMessage(role MessageRole, agentID, agentName, content string) MeetingMessage {
	return MeetingMessage{
		ID:        NewID(),
		AgentID:   agentID,
		AgentName: agentName,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}
