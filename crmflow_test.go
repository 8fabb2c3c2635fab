package crmflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crmflow/core"
	"github.com/hupe1980/crmflow/model"
	"github.com/hupe1980/crmflow/notify"
)

func TestNew_AssemblesDefaultTeam(t *testing.T) {
	f := New()

	ids := make(map[string]bool)
	for _, p := range f.Team() {
		ids[p.ID()] = true
	}

	for _, want := range []string{"ceo", "sales", "marketing", "it"} {
		assert.True(t, ids[want], "missing persona %q", want)
	}
}

func TestSaveWorkflow_RejectsInvalidDefinition(t *testing.T) {
	f := New()

	err := f.SaveWorkflow(context.Background(), &core.WorkflowDefinition{
		TriggerType: core.TriggerManual,
	})

	assert.ErrorIs(t, err, core.ErrInvalidDefinition)
}

func TestEmit_TriggersSavedWorkflow(t *testing.T) {
	sink := notify.NewInMemorySink()
	f := New(func(o *Options) { o.Notifications = sink })

	def := &core.WorkflowDefinition{
		ID:          "hot-lead",
		Name:        "Hot lead alert",
		TriggerType: core.TriggerEvent,
		Trigger:     core.TriggerConfig{EventType: "leads.created"},
		Steps: []core.WorkflowStep{
			{ID: "gate", Type: core.StepCondition, Condition: &core.ConditionStepConfig{
				Field: "score", Operator: ">", Value: float64(79),
			}},
			{ID: "ping", Type: core.StepAction, Action: &core.ActionStepConfig{
				Kind: core.ActionNotify,
				Notify: &core.NotifyActionConfig{
					UserID: "u-1", Title: "Hot lead", Message: "$trigger.name scored $trigger.score",
				},
			}},
		},
		Enabled: true,
	}
	require.NoError(t, f.SaveWorkflow(context.Background(), def))

	f.EmitEntityEvent(context.Background(), "created", "leads", "l-1", map[string]any{
		"name":  "Acme Corp",
		"score": float64(92),
	}, "u-1")

	runs, err := f.Runs(context.Background(), "hot-lead")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.RunCompleted, runs[0].Status)

	got := sink.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "Acme Corp scored 92", got[0].Message)
}

func TestRunWorkflow_Manual(t *testing.T) {
	f := New()

	def := &core.WorkflowDefinition{
		ID:          "manual-check",
		Name:        "Manual check",
		TriggerType: core.TriggerManual,
		Steps: []core.WorkflowStep{
			{ID: "gate", Type: core.StepCondition, Condition: &core.ConditionStepConfig{
				Field: "score", Operator: ">=", Value: float64(0),
			}},
		},
		Enabled: true,
	}
	require.NoError(t, f.SaveWorkflow(context.Background(), def))

	run, err := f.RunWorkflow(context.Background(), "manual-check", map[string]any{"score": float64(5)})

	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, run.Status)

	got, err := f.Workflow(context.Background(), "manual-check")
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
}

func TestDeleteWorkflow_StopsTriggering(t *testing.T) {
	f := New()

	def := &core.WorkflowDefinition{
		ID:          "wf-1",
		Name:        "Gate",
		TriggerType: core.TriggerEvent,
		Trigger:     core.TriggerConfig{EventType: "leads.created"},
		Steps: []core.WorkflowStep{
			{ID: "gate", Type: core.StepCondition, Condition: &core.ConditionStepConfig{
				Field: "score", Operator: ">=", Value: float64(0),
			}},
		},
		Enabled: true,
	}
	require.NoError(t, f.SaveWorkflow(context.Background(), def))
	require.NoError(t, f.DeleteWorkflow(context.Background(), "wf-1"))

	f.Emit(context.Background(), core.NewEvent("leads.created", map[string]any{"score": float64(1)}))

	_, err := f.Workflow(context.Background(), "wf-1")
	assert.ErrorIs(t, err, core.ErrWorkflowNotFound)
}

func TestAskTeamSync_RoutesMentions(t *testing.T) {
	m := model.NewMockModel("test")

	f := New(func(o *Options) { o.Model = m })

	replies := f.AskTeamSync(context.Background(), "@sales how should we handle the Acme lead?")

	require.Len(t, replies, 1)
	assert.Equal(t, "sales", replies[0].AgentID)
	assert.NotEmpty(t, replies[0].Content)
	// Exactly one model call was made, on behalf of the mentioned persona.
	assert.Len(t, m.Calls(), 1)
}

func TestRecentEvents_RecordsEmits(t *testing.T) {
	f := New()

	f.Emit(context.Background(), core.NewEvent("leads.created", nil))
	f.Emit(context.Background(), core.NewEvent("deals.won", nil))

	events := f.RecentEvents(0)
	require.Len(t, events, 2)
	assert.Equal(t, "leads.created", events[0].Type)
	assert.Equal(t, "deals.won", events[1].Type)
}
