package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crmflow/core"
)

func newTestScope() *Scope {
	trigger := core.Event{
		Type: "leads.created",
		Data: map[string]any{
			"name":  "Acme Corp",
			"score": float64(85),
			"hot":   true,
		},
	}
	return NewScope(trigger, map[string]map[string]any{
		"qualify": {"response": "Looks promising", "confidence": float64(0.9)},
	})
}

func TestInterpolate_TriggerAndStepReferences(t *testing.T) {
	s := newTestScope()

	got, err := s.Interpolate("Lead $trigger.name scored $trigger.score. Analyst said: $step_qualify.response")

	require.NoError(t, err)
	assert.Equal(t, "Lead Acme Corp scored 85. Analyst said: Looks promising", got)
}

func TestInterpolate_UnresolvedTriggerFieldFails(t *testing.T) {
	s := newTestScope()

	_, err := s.Interpolate("value: $trigger.missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnresolvedVariable)
}

func TestInterpolate_UnknownStepFails(t *testing.T) {
	s := newTestScope()

	_, err := s.Interpolate("$step_later.response")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnresolvedVariable)
}

func TestInterpolate_NoReferencesPassthrough(t *testing.T) {
	s := newTestScope()

	got, err := s.Interpolate("plain text, no variables")

	require.NoError(t, err)
	assert.Equal(t, "plain text, no variables", got)
}

func TestInterpolateValue_WholeTokenKeepsNativeType(t *testing.T) {
	s := newTestScope()

	got, err := s.InterpolateValue("$trigger.score")

	require.NoError(t, err)
	assert.Equal(t, float64(85), got)
}

func TestInterpolateValue_EmbeddedTokenBecomesString(t *testing.T) {
	s := newTestScope()

	got, err := s.InterpolateValue("score=$trigger.score")

	require.NoError(t, err)
	assert.Equal(t, "score=85", got)
}

func TestInterpolateParams_WalksNestedValues(t *testing.T) {
	s := newTestScope()

	got, err := s.InterpolateParams(map[string]any{
		"message": "New lead: $trigger.name",
		"meta": map[string]any{
			"hot":   "$trigger.hot",
			"notes": []any{"$step_qualify.response"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "New lead: Acme Corp", got["message"])
	meta := got["meta"].(map[string]any)
	assert.Equal(t, true, meta["hot"])
	assert.Equal(t, "Looks promising", meta["notes"].([]any)[0])
}

func TestResolve_BareFieldReadsTrigger(t *testing.T) {
	s := newTestScope()

	got, err := s.Resolve("score")

	require.NoError(t, err)
	assert.Equal(t, float64(85), got)
}

func TestResolve_MalformedReferenceFails(t *testing.T) {
	s := newTestScope()

	_, err := s.Resolve("$bogus.thing")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnresolvedVariable)
}

func TestReferences_ExtractsInOrder(t *testing.T) {
	refs := References("$trigger.name then $step_qualify.response and $step_notify-1.title")

	require.Len(t, refs, 3)
	assert.Equal(t, SourceTrigger, refs[0].Source)
	assert.Equal(t, "name", refs[0].Field)
	assert.Equal(t, SourceStep, refs[1].Source)
	assert.Equal(t, "qualify", refs[1].StepID)
	assert.Equal(t, "notify-1", refs[2].StepID)
}
