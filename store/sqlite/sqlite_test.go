package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crmflow/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "crmflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func sampleDefinition() *core.WorkflowDefinition {
	return &core.WorkflowDefinition{
		OwnerID:     "u-1",
		Name:        "Hot lead alert",
		TriggerType: core.TriggerEvent,
		Trigger:     core.TriggerConfig{EventType: "leads.created"},
		Steps: []core.WorkflowStep{
			{ID: "check", Type: core.StepCondition, Condition: &core.ConditionStepConfig{
				Field: "score", Operator: ">", Value: float64(79),
			}},
			{ID: "alert", Type: core.StepIntegration, Integration: &core.IntegrationStepConfig{
				IntegrationID: "slack", Action: "send_message",
				Params: map[string]any{"message": "Hot lead: $trigger.name"},
			}},
		},
		Enabled: true,
	}
}

func TestStore_DefinitionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	def := sampleDefinition()

	require.NoError(t, s.SaveDefinition(context.Background(), def))
	require.NotEmpty(t, def.ID)

	got, err := s.GetDefinition(context.Background(), def.ID)
	require.NoError(t, err)

	assert.Equal(t, "Hot lead alert", got.Name)
	assert.Equal(t, core.TriggerEvent, got.TriggerType)
	assert.Equal(t, "leads.created", got.Trigger.EventType)
	assert.True(t, got.Enabled)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, core.StepCondition, got.Steps[0].Type)
	assert.Equal(t, ">", got.Steps[0].Condition.Operator)
	assert.Equal(t, "slack", got.Steps[1].Integration.IntegrationID)
	assert.Equal(t, "Hot lead: $trigger.name", got.Steps[1].Integration.Params["message"])
}

func TestStore_SaveDefinitionUpserts(t *testing.T) {
	s := openTestStore(t)
	def := sampleDefinition()
	require.NoError(t, s.SaveDefinition(context.Background(), def))

	def.Name = "Renamed"
	def.RunCount = 3
	require.NoError(t, s.SaveDefinition(context.Background(), def))

	got, err := s.GetDefinition(context.Background(), def.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 3, got.RunCount)

	all, err := s.ListDefinitions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_GetDefinitionUnknownID(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDefinition(context.Background(), "nope")

	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)
}

func TestStore_ListDefinitionsByOwner(t *testing.T) {
	s := openTestStore(t)

	mine := sampleDefinition()
	require.NoError(t, s.SaveDefinition(context.Background(), mine))

	other := sampleDefinition()
	other.OwnerID = "u-2"
	require.NoError(t, s.SaveDefinition(context.Background(), other))

	got, err := s.ListDefinitions(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)
}

func TestStore_DeleteDefinitionRemovesRuns(t *testing.T) {
	s := openTestStore(t)
	def := sampleDefinition()
	require.NoError(t, s.SaveDefinition(context.Background(), def))

	run := core.NewWorkflowRun(def.ID, core.NewEvent("leads.created", nil))
	require.NoError(t, s.SaveRun(context.Background(), run))

	require.NoError(t, s.DeleteDefinition(context.Background(), def.ID))

	_, err := s.GetDefinition(context.Background(), def.ID)
	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)
	_, err = s.GetRun(context.Background(), run.ID)
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}

func TestStore_RunRoundTrip(t *testing.T) {
	s := openTestStore(t)

	run := core.NewWorkflowRun("wf-1", core.NewEvent("leads.created", map[string]any{"score": float64(85)}))
	require.NoError(t, s.SaveRun(context.Background(), run))

	run.RecordStep("check", map[string]any{"result": true})
	run.Complete(core.RunCompleted)
	require.NoError(t, s.SaveRun(context.Background(), run))

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, got.Status)
	assert.Equal(t, true, got.StepResults["check"]["result"])
	assert.Equal(t, float64(85), got.TriggerEvent.Data["score"])
	require.NotNil(t, got.CompletedAt)
}

func TestStore_ListRunsMostRecentFirst(t *testing.T) {
	s := openTestStore(t)

	older := core.NewWorkflowRun("wf-1", core.NewEvent("leads.created", nil))
	older.StartedAt = older.StartedAt.Add(-time.Hour)
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
