package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TriggerType selects how a workflow is started.
type TriggerType string

const (
	// TriggerEvent starts the workflow when a matching bus event is emitted.
	TriggerEvent TriggerType = "event"
	// TriggerManual starts the workflow only via an explicit user action.
	TriggerManual TriggerType = "manual"
	// TriggerSchedule starts the workflow on a cron schedule.
	TriggerSchedule TriggerType = "schedule"
)

// TriggerConfig carries the trigger-type specific settings of a definition.
// EventType may be an exact type ("leads.created") or a prefix pattern
// ("leads.*"). Schedule is a standard five-field cron expression.
type TriggerConfig struct {
	EventType string `json:"event_type,omitempty"`
	Schedule  string `json:"schedule,omitempty"`
}

// StepType identifies the kind of work a workflow step performs. The set is
// closed; the engine handles each kind exhaustively.
type StepType string

const (
	// StepAgent invokes an agent persona with an interpolated prompt.
	StepAgent StepType = "agent"
	// StepCondition gates the remaining steps of the run.
	StepCondition StepType = "condition"
	// StepIntegration delegates to an external integration adapter.
	StepIntegration StepType = "integration"
	// StepAction performs a local side effect (notify, change log, emit).
	StepAction StepType = "action"
	// StepDelay suspends the run for a configured duration.
	StepDelay StepType = "delay"
)

// AgentStepConfig configures a StepAgent. Prompt may contain $trigger.<field>
// and $step_<id>.<field> references resolved at execution time.
type AgentStepConfig struct {
	AgentID string `json:"agent_id"`
	Prompt  string `json:"prompt"`
}

// ConditionStepConfig configures a StepCondition. Field names a value from
// the trigger payload (optionally via a $trigger. or $step_<id>. reference),
// Operator is one of =, ==, !=, >, <, >=, <=, contains or expr. For the expr
// operator, Value holds a boolean expression evaluated against the run scope.
type ConditionStepConfig struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// IntegrationStepConfig configures a StepIntegration. Params values are
// interpolated before the adapter's Execute is called.
type IntegrationStepConfig struct {
	IntegrationID string         `json:"integration_id"`
	Action        string         `json:"action"`
	Params        map[string]any `json:"params,omitempty"`
}

// ActionKind selects the local side effect performed by a StepAction.
type ActionKind string

const (
	// ActionNotify creates a user notification through the NotificationSink.
	ActionNotify ActionKind = "notify"
	// ActionLog records an audit entry through the ChangeLogger.
	ActionLog ActionKind = "log"
	// ActionEmit publishes a new event on the bus.
	ActionEmit ActionKind = "emit"
)

// NotifyActionConfig configures an ActionNotify side effect.
type NotifyActionConfig struct {
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// LogActionConfig configures an ActionLog side effect.
type LogActionConfig struct {
	Description string         `json:"description"`
	BeforeState map[string]any `json:"before_state,omitempty"`
	AfterState  map[string]any `json:"after_state,omitempty"`
	Status      string         `json:"status,omitempty"`
}

// EmitActionConfig configures an ActionEmit side effect.
type EmitActionConfig struct {
	Entity   string         `json:"entity"`
	Action   string         `json:"action"`
	EntityID string         `json:"entity_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// ActionStepConfig configures a StepAction. Exactly one of the kind-specific
// fields must be set, matching Kind.
type ActionStepConfig struct {
	Kind   ActionKind          `json:"kind"`
	Notify *NotifyActionConfig `json:"notify,omitempty"`
	Log    *LogActionConfig    `json:"log,omitempty"`
	Emit   *EmitActionConfig   `json:"emit,omitempty"`
}

// Duration wraps time.Duration with JSON support for both Go duration
// strings ("90s", "2m") and plain numbers interpreted as seconds.
type Duration time.Duration

// MarshalJSON renders the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			// Bare numeric strings are treated as seconds.
			secs, convErr := strconv.ParseFloat(val, 64)
			if convErr != nil {
				return fmt.Errorf("invalid duration %q: %w", val, err)
			}
			*d = Duration(time.Duration(secs * float64(time.Second)))
			return nil
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// DelayStepConfig configures a StepDelay.
type DelayStepConfig struct {
	Duration Duration `json:"duration"`
}

// WorkflowStep is one unit of work in a workflow. It is a tagged variant:
// Type selects which of the config pointers is populated. Steps are ordered
// and addressed by position; a false condition step short-circuits the
// remaining steps of the run.
type WorkflowStep struct {
	ID          string                 `json:"id"`
	Type        StepType               `json:"type"`
	Agent       *AgentStepConfig       `json:"-"`
	Condition   *ConditionStepConfig   `json:"-"`
	Integration *IntegrationStepConfig `json:"-"`
	Action      *ActionStepConfig      `json:"-"`
	Delay       *DelayStepConfig       `json:"-"`
}

// stepEnvelope is the wire shape of a step: the config payload is decoded
// into the variant selected by Type.
type stepEnvelope struct {
	ID     string          `json:"id"`
	Type   StepType        `json:"type"`
	Config json.RawMessage `json:"config"`
}

// UnmarshalJSON decodes the step envelope and its type-specific config.
func (s *WorkflowStep) UnmarshalJSON(b []byte) error {
	var env stepEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	s.ID = env.ID
	s.Type = env.Type
	if len(env.Config) == 0 {
		env.Config = []byte("{}")
	}
	switch env.Type {
	case StepAgent:
		s.Agent = &AgentStepConfig{}
		return json.Unmarshal(env.Config, s.Agent)
	case StepCondition:
		s.Condition = &ConditionStepConfig{}
		return json.Unmarshal(env.Config, s.Condition)
	case StepIntegration:
		s.Integration = &IntegrationStepConfig{}
		return json.Unmarshal(env.Config, s.Integration)
	case StepAction:
		s.Action = &ActionStepConfig{}
		return json.Unmarshal(env.Config, s.Action)
	case StepDelay:
		s.Delay = &DelayStepConfig{}
		return json.Unmarshal(env.Config, s.Delay)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStepType, env.Type)
	}
}

// MarshalJSON encodes the step back into its envelope form.
func (s WorkflowStep) MarshalJSON() ([]byte, error) {
	var cfg any
	switch s.Type {
	case StepAgent:
		cfg = s.Agent
	case StepCondition:
		cfg = s.Condition
	case StepIntegration:
		cfg = s.Integration
	case StepAction:
		cfg = s.Action
	case StepDelay:
		cfg = s.Delay
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, s.Type)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stepEnvelope{ID: s.ID, Type: s.Type, Config: raw})
}

// WorkflowDefinition is a declarative, ordered list of steps plus the trigger
// that starts them. Definitions are authored by a user or template; the
// engine never mutates them (only Enabled / RunCount bookkeeping changes
// from outside the core).
type WorkflowDefinition struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	TriggerType TriggerType    `json:"trigger_type"`
	Trigger     TriggerConfig  `json:"trigger_config"`
	Steps       []WorkflowStep `json:"steps"`
	Enabled     bool           `json:"enabled"`
	RunCount    int            `json:"run_count,omitempty"`
	Created     time.Time      `json:"created,omitempty"`
	Updated     time.Time      `json:"updated,omitempty"`
}

// Step returns the step with the given id, or nil when absent.
func (d *WorkflowDefinition) Step(id string) *WorkflowStep {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	// RunRunning means steps are still executing.
	RunRunning RunStatus = "running"
	// RunCompleted means the step list was exhausted or a condition
	// short-circuited the run without error.
	RunCompleted RunStatus = "completed"
	// RunFailed means a step failed fatally; StepResults retains the
	// outputs recorded before the failure.
	RunFailed RunStatus = "failed"
)

// WorkflowRun is one execution instance of a definition against a specific
// trigger payload. StepResults maps step IDs to their recorded outputs so
// later steps can reference $step_<id>.<field>.
type WorkflowRun struct {
	ID           string                    `json:"id"`
	WorkflowID   string                    `json:"workflow_id"`
	TriggerEvent Event                     `json:"trigger_event"`
	StartedAt    time.Time                 `json:"started_at"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
	Status       RunStatus                 `json:"status"`
	StepResults  map[string]map[string]any `json:"step_results"`
	Error        string                    `json:"error,omitempty"`
}

// NewWorkflowRun creates a running instance for the given definition and
// trigger event.
func NewWorkflowRun(workflowID string, trigger Event) *WorkflowRun {
	return &WorkflowRun{
		ID:           NewID(),
		WorkflowID:   workflowID,
		TriggerEvent: trigger,
		StartedAt:    time.Now().UTC(),
		Status:       RunRunning,
		StepResults:  map[string]map[string]any{},
	}
}

// RecordStep stores the output of a completed step, making it available to
// later steps of the same run.
func (r *WorkflowRun) RecordStep(stepID string, output map[string]any) {
	if output == nil {
		output = map[string]any{}
	}
	r.StepResults[stepID] = output
}

// Complete marks the run terminal with the given status.
func (r *WorkflowRun) Complete(status RunStatus) {
	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
}

// Fail marks the run failed with the supplied reason.
func (r *WorkflowRun) Fail(reason string) {
	r.Error = reason
	r.Complete(RunFailed)
}

// Clone returns a deep copy of the run safe for independent mutation.
func (r *WorkflowRun) Clone() *WorkflowRun {
	clone := *r
	clone.StepResults = make(map[string]map[string]any, len(r.StepResults))
	for id, out := range r.StepResults {
		cp := make(map[string]any, len(out))
		for k, v := range out {
			cp[k] = v
		}
		clone.StepResults[id] = cp
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}
