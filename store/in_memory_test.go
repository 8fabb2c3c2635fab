package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crmflow/core"
)

func sampleDefinition(owner string) *core.WorkflowDefinition {
	return &core.WorkflowDefinition{
		OwnerID:     owner,
		Name:        "Hot lead alert",
		TriggerType: core.TriggerEvent,
		Trigger:     core.TriggerConfig{EventType: "leads.created"},
		Steps: []core.WorkflowStep{
			{ID: "check", Type: core.StepCondition, Condition: &core.ConditionStepConfig{
				Field: "score", Operator: ">", Value: float64(79),
			}},
		},
		Enabled: true,
	}
}

func TestInMemory_SaveDefinitionFillsDefaults(t *testing.T) {
	s := NewInMemory()
	def := sampleDefinition("u-1")

	require.NoError(t, s.SaveDefinition(context.Background(), def))

	assert.NotEmpty(t, def.ID)
	assert.False(t, def.Created.IsZero())
	assert.False(t, def.Updated.IsZero())
}

func TestInMemory_GetDefinitionReturnsCopy(t *testing.T) {
	s := NewInMemory()
	def := sampleDefinition("u-1")
	require.NoError(t, s.SaveDefinition(context.Background(), def))

	got, err := s.GetDefinition(context.Background(), def.ID)
	require.NoError(t, err)

	got.Name = "mutated"
	got.Steps[0].Condition.Value = float64(0)

	again, err := s.GetDefinition(context.Background(), def.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hot lead alert", again.Name)
	assert.Equal(t, float64(79), again.Steps[0].Condition.Value)
}

func TestInMemory_GetDefinitionUnknownID(t *testing.T) {
	s := NewInMemory()

	_, err := s.GetDefinition(context.Background(), "nope")

	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)
}

func TestInMemory_ListDefinitionsByOwner(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.SaveDefinition(context.Background(), sampleDefinition("u-1")))
	require.NoError(t, s.SaveDefinition(context.Background(), sampleDefinition("u-2")))
	require.NoError(t, s.SaveDefinition(context.Background(), sampleDefinition("u-1")))

	mine, err := s.ListDefinitions(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := s.ListDefinitions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestInMemory_DeleteDefinitionRemovesRuns(t *testing.T) {
	s := NewInMemory()
	def := sampleDefinition("u-1")
	require.NoError(t, s.SaveDefinition(context.Background(), def))

	run := core.NewWorkflowRun(def.ID, core.NewEvent("leads.created", nil))
	require.NoError(t, s.SaveRun(context.Background(), run))

	require.NoError(t, s.DeleteDefinition(context.Background(), def.ID))

	_, err := s.GetDefinition(context.Background(), def.ID)
	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)
	_, err = s.GetRun(context.Background(), run.ID)
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}

func TestInMemory_RunsRoundTrip(t *testing.T) {
	s := NewInMemory()

	run := core.NewWorkflowRun("wf-1", core.NewEvent("leads.created", map[string]any{"score": float64(85)}))
	run.RecordStep("check", map[string]any{"result": true})
	require.NoError(t, s.SaveRun(context.Background(), run))

	run.Complete(core.RunCompleted)
	require.NoError(t, s.SaveRun(context.Background(), run))

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, got.Status)
	assert.Equal(t, true, got.StepResults["check"]["result"])
	require.NotNil(t, got.CompletedAt)
}

func TestInMemory_ListRunsMostRecentFirst(t *testing.T) {
	s := NewInMemory()

	older := core.NewWorkflowRun("wf-1", core.NewEvent("leads.created", nil))
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	newer := core.NewWorkflowRun("wf-1", core.NewEvent("leads.created", nil))
	other := core.NewWorkflowRun("wf-2", core.NewEvent("deals.won", nil))

	require.NoError(t, s.SaveRun(context.Background(), older))
	require.NoError(t, s.SaveRun(context.Background(), newer))
	require.NoError(t, s.SaveRun(context.Background(), other))

	runs, err := s.ListRuns(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)
}
