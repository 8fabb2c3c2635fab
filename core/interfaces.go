package core

import (
	"context"
	"time"
)

// AgentChat is the minimal contract a chat-capable agent persona must
// satisfy. Implementations may call a remote model, run a tool loop or fall
// back to templates; the core only relies on async text-in/text-out.
type AgentChat interface {
	// ID returns the stable persona identifier (e.g. "ceo", "sales").
	ID() string

	// Chat produces a textual response to the given message. It may fail;
	// callers convert failures into recorded error data, never panics.
	Chat(ctx context.Context, message string) (string, error)
}

// IntegrationResult is the uniform outcome of an integration call.
// Configuration errors (unknown action, missing config) are reported with
// Success=false before any network call is attempted.
type IntegrationResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Integration is a pluggable connector to a third-party service. Each
// integration declares its own supported action names; the engine validates
// the action before invoking Execute.
type Integration interface {
	// ID returns the integration identifier referenced by workflow steps.
	ID() string

	// Actions returns the action names this integration supports.
	Actions() []string

	// Execute performs the named action with the given parameters.
	Execute(ctx context.Context, action string, params map[string]any) (*IntegrationResult, error)

	// TestConnection verifies the integration is reachable with its
	// current configuration.
	TestConnection(ctx context.Context) error
}

// Notification is a user-visible message produced by workflow action steps.
type Notification struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Severity string    `json:"severity,omitempty"`
	Source   string    `json:"source,omitempty"`
	RefID    string    `json:"ref_id,omitempty"`
	RefType  string    `json:"ref_type,omitempty"`
	Created  time.Time `json:"created"`
}

// NotificationSink receives notifications. Fire-and-forget from the engine's
// perspective; storage is the implementer's concern.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n Notification) error
}

// ChangeEntry is an audit record produced by workflow action steps.
type ChangeEntry struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	BeforeState map[string]any `json:"before_state,omitempty"`
	AfterState  map[string]any `json:"after_state,omitempty"`
	Status      string         `json:"status,omitempty"`
	Created     time.Time      `json:"created"`
}

// ChangeLogger records audit entries. Same fire-and-forget contract as
// NotificationSink.
type ChangeLogger interface {
	LogChange(ctx context.Context, entry ChangeEntry) error
}

// WorkflowStore persists workflow definitions and runs. The core only needs
// CRUD-style operations keyed by ID and by owner scope.
type WorkflowStore interface {
	SaveDefinition(ctx context.Context, def *WorkflowDefinition) error
	GetDefinition(ctx context.Context, id string) (*WorkflowDefinition, error)
	ListDefinitions(ctx context.Context, ownerID string) ([]*WorkflowDefinition, error)
	DeleteDefinition(ctx context.Context, id string) error

	SaveRun(ctx context.Context, run *WorkflowRun) error
	GetRun(ctx context.Context, id string) (*WorkflowRun, error)
	ListRuns(ctx context.Context, workflowID string) ([]*WorkflowRun, error)
}
