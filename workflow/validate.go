package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/crmflow/core"
)

// definitionSchema is the structural contract for workflow definitions
// arriving as JSON, e.g. from an HTTP API or a template file. Semantic rules
// that a schema cannot express (config matching the step type, operator
// membership, forward references) are enforced by Validate.
const definitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "trigger_type", "steps"],
  "properties": {
    "id": {"type": "string"},
    "owner_id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "trigger_type": {"enum": ["event", "manual", "schedule"]},
    "trigger_config": {
      "type": "object",
      "properties": {
        "event_type": {"type": "string"},
        "schedule": {"type": "string"}
      }
    },
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "pattern": "^[A-Za-z0-9_-]+$"},
          "type": {"enum": ["agent", "condition", "integration", "action", "delay"]},
          "config": {"type": "object"}
        }
      }
    },
    "enabled": {"type": "boolean"}
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchema))
	if err != nil {
		return nil, fmt.Errorf("parse definition schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("workflow-definition.json", doc); err != nil {
		return nil, fmt.Errorf("add definition schema: %w", err)
	}

	return compiler.Compile("workflow-definition.json")
})

// ParseDefinition decodes and validates a JSON workflow definition. The raw
// document is first checked against the structural schema, then decoded and
// run through Validate.
func ParseDefinition(raw []byte) (*core.WorkflowDefinition, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDefinition, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDefinition, err)
	}

	var def core.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDefinition, err)
	}
	if err := Validate(&def); err != nil {
		return nil, err
	}

	return &def, nil
}

// Validate enforces the semantic rules of a definition:
//
//   - a non-empty name and a known trigger type, with the trigger config
//     the type requires (event type for event triggers, cron expression
//     for schedule triggers)
//   - unique step IDs
//   - each step's config variant populated and matching its type
//   - condition operators drawn from the supported set
//   - $step_<id>.<field> references only pointing at earlier steps
func Validate(def *core.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", core.ErrInvalidDefinition)
	}

	switch def.TriggerType {
	case core.TriggerEvent:
		if def.Trigger.EventType == "" {
			return fmt.Errorf("%w: event trigger requires an event type", core.ErrInvalidDefinition)
		}
	case core.TriggerSchedule:
		if def.Trigger.Schedule == "" {
			return fmt.Errorf("%w: schedule trigger requires a cron expression", core.ErrInvalidDefinition)
		}
	case core.TriggerManual:
	default:
		return fmt.Errorf("%w: unknown trigger type %q", core.ErrInvalidDefinition, def.TriggerType)
	}

	seen := make(map[string]bool, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.ID == "" {
			return fmt.Errorf("%w: step %d has no id", core.ErrInvalidDefinition, i)
		}
		if seen[step.ID] {
			return fmt.Errorf("%w: duplicate step id %q", core.ErrInvalidDefinition, step.ID)
		}

		if err := validateStep(step, seen); err != nil {
			return err
		}

		seen[step.ID] = true
	}

	return nil
}

// validateStep checks one step's config variant and its references. earlier
// holds the IDs of steps preceding it.
func validateStep(step *core.WorkflowStep, earlier map[string]bool) error {
	switch step.Type {
	case core.StepAgent:
		if step.Agent == nil || step.Agent.AgentID == "" {
			return fmt.Errorf("%w: agent step %q requires an agent_id", core.ErrInvalidDefinition, step.ID)
		}
		return validateReferences(step.ID, step.Agent.Prompt, earlier)
	case core.StepCondition:
		cfg := step.Condition
		if cfg == nil || cfg.Operator == "" {
			return fmt.Errorf("%w: condition step %q requires an operator", core.ErrInvalidDefinition, step.ID)
		}
		if !conditionOperators[cfg.Operator] {
			return fmt.Errorf("%w: condition step %q has unknown operator %q", core.ErrInvalidDefinition, step.ID, cfg.Operator)
		}
		if cfg.Operator != "expr" && cfg.Field == "" {
			return fmt.Errorf("%w: condition step %q requires a field", core.ErrInvalidDefinition, step.ID)
		}
		return validateReferences(step.ID, cfg.Field, earlier)
	case core.StepIntegration:
		cfg := step.Integration
		if cfg == nil || cfg.IntegrationID == "" || cfg.Action == "" {
			return fmt.Errorf("%w: integration step %q requires an integration_id and action", core.ErrInvalidDefinition, step.ID)
		}
		raw, err := json.Marshal(cfg.Params)
		if err != nil {
			return fmt.Errorf("%w: integration step %q has unserializable params", core.ErrInvalidDefinition, step.ID)
		}
		return validateReferences(step.ID, string(raw), earlier)
	case core.StepAction:
		return validateActionStep(step, earlier)
	case core.StepDelay:
		if step.Delay == nil {
			return fmt.Errorf("%w: delay step %q requires a duration", core.ErrInvalidDefinition, step.ID)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", core.ErrUnknownStepType, step.Type)
	}
}

func validateActionStep(step *core.WorkflowStep, earlier map[string]bool) error {
	cfg := step.Action
	if cfg == nil {
		return fmt.Errorf("%w: action step %q has no config", core.ErrInvalidDefinition, step.ID)
	}

	var texts []string
	switch cfg.Kind {
	case core.ActionNotify:
		if cfg.Notify == nil {
			return fmt.Errorf("%w: notify action step %q has no notify config", core.ErrInvalidDefinition, step.ID)
		}
		texts = []string{cfg.Notify.Title, cfg.Notify.Message}
	case core.ActionLog:
		if cfg.Log == nil {
			return fmt.Errorf("%w: log action step %q has no log config", core.ErrInvalidDefinition, step.ID)
		}
		texts = []string{cfg.Log.Description}
	case core.ActionEmit:
		if cfg.Emit == nil || cfg.Emit.Entity == "" || cfg.Emit.Action == "" {
			return fmt.Errorf("%w: emit action step %q requires an entity and action", core.ErrInvalidDefinition, step.ID)
		}
		raw, err := json.Marshal(cfg.Emit.Data)
		if err != nil {
			return fmt.Errorf("%w: emit action step %q has unserializable data", core.ErrInvalidDefinition, step.ID)
		}
		texts = []string{cfg.Emit.EntityID, string(raw)}
	default:
		return fmt.Errorf("%w: action step %q has unknown kind %q", core.ErrInvalidDefinition, step.ID, cfg.Kind)
	}

	for _, text := range texts {
		if err := validateReferences(step.ID, text, earlier); err != nil {
			return err
		}
	}
	return nil
}

// validateReferences rejects $step_ references to steps that do not precede
// the referencing step. Self references count as forward references.
func validateReferences(stepID, text string, earlier map[string]bool) error {
	for _, ref := range References(text) {
		if ref.Source == SourceStep && !earlier[ref.StepID] {
			return fmt.Errorf("%w: step %q references $step_%s.%s before that step runs", core.ErrInvalidDefinition, stepID, ref.StepID, ref.Field)
		}
	}
	return nil
}
