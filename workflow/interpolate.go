package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/crmflow/core"
)

// Variable reference mini-language.
//
// Grammar:
//
//	reference = trigger-ref | step-ref
//	trigger-ref = "$trigger." ident
//	step-ref    = "$step_" step-id "." ident
//	step-id     = [A-Za-z0-9_-]+
//	ident       = [A-Za-z0-9_]+
//
// A trigger-ref resolves against the triggering event's data map; a step-ref
// resolves against the recorded output of the earlier step with that id.
// Ordering guarantees that only values already produced in the same run are
// reachable. An unresolvable reference fails the step (wrapping
// core.ErrUnresolvedVariable); it is never silently replaced with an empty
// string.
var referenceRe = regexp.MustCompile(`\$(?:trigger\.([A-Za-z0-9_]+)|step_([A-Za-z0-9_-]+)\.([A-Za-z0-9_]+))`)

// Scope holds the data available for variable resolution within one run.
type Scope struct {
	// Trigger is the triggering event's data map.
	Trigger map[string]any

	// Steps maps step IDs to their recorded outputs.
	Steps map[string]map[string]any
}

// NewScope builds a resolution scope from a trigger event and the outputs
// recorded so far.
func NewScope(trigger core.Event, stepResults map[string]map[string]any) *Scope {
	return &Scope{Trigger: trigger.Data, Steps: stepResults}
}

// Resolve returns the value behind a single reference. The reference may be
// a full "$trigger.<field>" / "$step_<id>.<field>" token or a bare field
// name, which resolves against the trigger data.
func (s *Scope) Resolve(ref string) (any, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "$") {
		if v, ok := s.Trigger[ref]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: field %q not present in trigger data", core.ErrUnresolvedVariable, ref)
	}

	m := referenceRe.FindStringSubmatch(ref)
	if m == nil || m[0] != ref {
		return nil, fmt.Errorf("%w: malformed reference %q", core.ErrUnresolvedVariable, ref)
	}
	return s.lookup(m)
}

// lookup resolves one regexp match (either the trigger or the step branch).
func (s *Scope) lookup(m []string) (any, error) {
	if m[1] != "" {
		if v, ok := s.Trigger[m[1]]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: $trigger.%s not present in trigger data", core.ErrUnresolvedVariable, m[1])
	}
	stepID, field := m[2], m[3]
	out, ok := s.Steps[stepID]
	if !ok {
		return nil, fmt.Errorf("%w: step %q has no recorded output", core.ErrUnresolvedVariable, stepID)
	}
	v, ok := out[field]
	if !ok {
		return nil, fmt.Errorf("%w: $step_%s.%s not present in step output", core.ErrUnresolvedVariable, stepID, field)
	}
	return v, nil
}

// Interpolate replaces every reference in text with its resolved value. The
// first unresolvable reference aborts with an error.
func (s *Scope) Interpolate(text string) (string, error) {
	var firstErr error
	out := referenceRe.ReplaceAllStringFunc(text, func(token string) string {
		if firstErr != nil {
			return token
		}
		v, err := s.lookup(referenceRe.FindStringSubmatch(token))
		if err != nil {
			firstErr = err
			return token
		}
		return formatValue(v)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// InterpolateValue walks an arbitrary config value (strings, maps, slices)
// replacing references inside strings. A string that consists of exactly one
// reference keeps the resolved value's native type, so numeric and boolean
// trigger fields survive into integration params.
func (s *Scope) InterpolateValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if m := referenceRe.FindStringSubmatch(val); m != nil && m[0] == strings.TrimSpace(val) {
			return s.lookup(m)
		}
		return s.Interpolate(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := s.InterpolateValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := s.InterpolateValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// InterpolateParams applies InterpolateValue across a params map.
func (s *Scope) InterpolateParams(params map[string]any) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	out, err := s.InterpolateValue(params)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// formatValue renders a resolved value for embedding into text.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	case float64:
		// Render integral floats without a trailing ".0" so interpolated
		// prompts read naturally.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// References extracts all variable references appearing in text, in order of
// appearance. Used by definition validation to reject forward step
// references.
func References(text string) []Reference {
	var out []Reference
	for _, m := range referenceRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			out = append(out, Reference{Source: SourceTrigger, Field: m[1]})
		} else {
			out = append(out, Reference{Source: SourceStep, StepID: m[2], Field: m[3]})
		}
	}
	return out
}

// ReferenceSource distinguishes trigger from step references.
type ReferenceSource int

const (
	// SourceTrigger marks a $trigger.<field> reference.
	SourceTrigger ReferenceSource = iota
	// SourceStep marks a $step_<id>.<field> reference.
	SourceStep
)

// Reference is one parsed variable reference.
type Reference struct {
	Source ReferenceSource
	StepID string
	Field  string
}
