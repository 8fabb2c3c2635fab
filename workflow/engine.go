package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/crmflow/bus"
	"github.com/hupe1980/crmflow/core"
	"github.com/hupe1980/crmflow/integration"
	"github.com/hupe1980/crmflow/logging"
)

// Options configures the step engine's collaborators. All of them are
// optional; steps that need an absent collaborator fail with a descriptive
// error instead of panicking.
type Options struct {
	// Agents maps persona IDs to their chat implementations.
	Agents map[string]core.AgentChat

	// Integrations dispatches integration steps to registered adapters.
	Integrations *integration.Registry

	// Notifications receives notify action side effects.
	Notifications core.NotificationSink

	// Changes receives log action side effects.
	Changes core.ChangeLogger

	// Store persists runs after every recorded step. Nil disables
	// persistence.
	Store core.WorkflowStore

	// Bus receives emit action side effects.
	Bus *bus.Bus

	// Logger receives structured engine logs.
	Logger logging.Logger
}

// Engine executes workflow definitions step by step.
//
// Contract:
//   - Steps run strictly in definition order; there is no parallelism
//     within a run.
//   - Each completed step's output is recorded under its ID before the
//     next step starts, so $step_<id>.<field> references always see it.
//   - A false condition short-circuits the run: remaining steps are
//     skipped and the run completes successfully.
//   - A step error makes the run failed; outputs recorded before the
//     failure are retained on the run.
//
// An Engine is stateless between runs and safe for concurrent use.
type Engine struct {
	agents        map[string]core.AgentChat
	integrations  *integration.Registry
	notifications core.NotificationSink
	changes       core.ChangeLogger
	store         core.WorkflowStore
	bus           *bus.Bus
	logger        logging.Logger
}

// New creates a step engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Agents == nil {
		opts.Agents = map[string]core.AgentChat{}
	}

	return &Engine{
		agents:        opts.Agents,
		integrations:  opts.Integrations,
		notifications: opts.Notifications,
		changes:       opts.Changes,
		store:         opts.Store,
		bus:           opts.Bus,
		logger:        opts.Logger,
	}
}

// Run executes the definition against the trigger event and returns the
// finished run. The returned run is terminal (completed or failed); the
// error mirrors the run's failure reason so callers can branch without
// inspecting the struct.
func (e *Engine) Run(ctx context.Context, def *core.WorkflowDefinition, trigger core.Event) (*core.WorkflowRun, error) {
	run := core.NewWorkflowRun(def.ID, trigger)
	start := time.Now()

	e.logger.Info("Workflow run started", "workflow_id", def.ID, "run_id", run.ID, "trigger_type", trigger.Type)
	e.persist(ctx, run)

	for _, step := range def.Steps {
		scope := NewScope(trigger, run.StepResults)

		output, proceed, err := e.executeStep(ctx, &step, scope)
		if err != nil {
			run.Fail(fmt.Sprintf("step %q: %v", step.ID, err))
			e.persist(ctx, run)
			e.logger.Error("Workflow run failed", "workflow_id", def.ID, "run_id", run.ID, "step_id", step.ID, "error", err, "duration", time.Since(start))
			return run, fmt.Errorf("step %q: %w", step.ID, err)
		}

		run.RecordStep(step.ID, output)
		e.persist(ctx, run)

		if !proceed {
			e.logger.Info("Workflow run short-circuited", "workflow_id", def.ID, "run_id", run.ID, "step_id", step.ID)
			break
		}
	}

	run.Complete(core.RunCompleted)
	e.persist(ctx, run)
	e.logger.Info("Workflow run completed", "workflow_id", def.ID, "run_id", run.ID, "steps", len(run.StepResults), "duration", time.Since(start))

	return run, nil
}

// executeStep dispatches one step. proceed=false signals a condition
// short-circuit; the run still completes successfully.
func (e *Engine) executeStep(ctx context.Context, step *core.WorkflowStep, scope *Scope) (output map[string]any, proceed bool, err error) {
	switch step.Type {
	case core.StepAgent:
		output, err = e.runAgentStep(ctx, step.Agent, scope)
		return output, err == nil, err
	case core.StepCondition:
		return e.runConditionStep(step.Condition, scope)
	case core.StepIntegration:
		output, err = e.runIntegrationStep(ctx, step.Integration, scope)
		return output, err == nil, err
	case core.StepAction:
		output, err = e.runActionStep(ctx, step.Action, scope)
		return output, err == nil, err
	case core.StepDelay:
		output, err = e.runDelayStep(ctx, step.Delay)
		return output, err == nil, err
	default:
		return nil, false, fmt.Errorf("%w: %q", core.ErrUnknownStepType, step.Type)
	}
}

func (e *Engine) runAgentStep(ctx context.Context, cfg *core.AgentStepConfig, scope *Scope) (map[string]any, error) {
	agent, ok := e.agents[cfg.AgentID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrAgentNotFound, cfg.AgentID)
	}

	prompt, err := scope.Interpolate(cfg.Prompt)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	response, err := agent.Chat(ctx, prompt)
	if err != nil {
		e.logger.Error("Agent step failed", "agent_id", cfg.AgentID, "duration", time.Since(start), "error", err)
		return nil, fmt.Errorf("agent %q: %w", cfg.AgentID, err)
	}

	e.logger.Debug("Agent step completed", "agent_id", cfg.AgentID, "duration", time.Since(start))

	return map[string]any{
		"agent_id": cfg.AgentID,
		"response": response,
	}, nil
}

func (e *Engine) runConditionStep(cfg *core.ConditionStepConfig, scope *Scope) (map[string]any, bool, error) {
	if !conditionOperators[cfg.Operator] {
		return nil, false, fmt.Errorf("unknown condition operator %q", cfg.Operator)
	}

	result, err := evalCondition(cfg, scope)
	if err != nil {
		return nil, false, err
	}

	return map[string]any{"result": result}, result, nil
}

func (e *Engine) runIntegrationStep(ctx context.Context, cfg *core.IntegrationStepConfig, scope *Scope) (map[string]any, error) {
	if e.integrations == nil {
		return nil, fmt.Errorf("no integration registry configured")
	}

	params, err := scope.InterpolateParams(cfg.Params)
	if err != nil {
		return nil, err
	}

	res, err := e.integrations.Execute(ctx, cfg.IntegrationID, cfg.Action, params)
	if err != nil {
		return nil, fmt.Errorf("integration %q action %q: %w", cfg.IntegrationID, cfg.Action, err)
	}

	if !res.Success {
		return nil, fmt.Errorf("integration %q action %q: %s", cfg.IntegrationID, cfg.Action, res.Error)
	}

	output := map[string]any{
		"integration_id": cfg.IntegrationID,
		"action":         cfg.Action,
		"success":        true,
	}
	for k, v := range res.Data {
		output[k] = v
	}

	return output, nil
}

func (e *Engine) runActionStep(ctx context.Context, cfg *core.ActionStepConfig, scope *Scope) (map[string]any, error) {
	switch cfg.Kind {
	case core.ActionNotify:
		return e.runNotifyAction(ctx, cfg.Notify, scope)
	case core.ActionLog:
		return e.runLogAction(ctx, cfg.Log, scope)
	case core.ActionEmit:
		return e.runEmitAction(ctx, cfg.Emit, scope)
	default:
		return nil, fmt.Errorf("unknown action kind %q", cfg.Kind)
	}
}

func (e *Engine) runNotifyAction(ctx context.Context, cfg *core.NotifyActionConfig, scope *Scope) (map[string]any, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notify action has no config")
	}
	if e.notifications == nil {
		return nil, fmt.Errorf("no notification sink configured")
	}

	title, err := scope.Interpolate(cfg.Title)
	if err != nil {
		return nil, err
	}
	message, err := scope.Interpolate(cfg.Message)
	if err != nil {
		return nil, err
	}

	n := core.Notification{
		UserID:   cfg.UserID,
		Title:    title,
		Message:  message,
		Severity: cfg.Severity,
		Source:   "workflow",
	}
	if err := e.notifications.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	return map[string]any{"kind": string(core.ActionNotify), "title": title}, nil
}

func (e *Engine) runLogAction(ctx context.Context, cfg *core.LogActionConfig, scope *Scope) (map[string]any, error) {
	if cfg == nil {
		return nil, fmt.Errorf("log action has no config")
	}
	if e.changes == nil {
		return nil, fmt.Errorf("no change logger configured")
	}

	description, err := scope.Interpolate(cfg.Description)
	if err != nil {
		return nil, err
	}

	entry := core.ChangeEntry{
		Description: description,
		BeforeState: cfg.BeforeState,
		AfterState:  cfg.AfterState,
		Status:      cfg.Status,
	}
	if err := e.changes.LogChange(ctx, entry); err != nil {
		return nil, fmt.Errorf("log change: %w", err)
	}

	return map[string]any{"kind": string(core.ActionLog), "description": description}, nil
}

func (e *Engine) runEmitAction(ctx context.Context, cfg *core.EmitActionConfig, scope *Scope) (map[string]any, error) {
	if cfg == nil {
		return nil, fmt.Errorf("emit action has no config")
	}
	if e.bus == nil {
		return nil, fmt.Errorf("no event bus configured")
	}

	data, err := scope.InterpolateParams(cfg.Data)
	if err != nil {
		return nil, err
	}

	entityID, err := scope.Interpolate(cfg.EntityID)
	if err != nil {
		return nil, err
	}

	e.bus.EmitEntityEvent(ctx, cfg.Action, cfg.Entity, entityID, data, "")

	return map[string]any{
		"kind":       string(core.ActionEmit),
		"event_type": fmt.Sprintf("%s.%s", cfg.Entity, cfg.Action),
	}, nil
}

// runDelayStep suspends the run, honoring context cancellation.
func (e *Engine) runDelayStep(ctx context.Context, cfg *core.DelayStepConfig) (map[string]any, error) {
	d := time.Duration(cfg.Duration)
	if d <= 0 {
		return map[string]any{"delayed": "0s"}, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return map[string]any{"delayed": d.String()}, nil
	}
}

// persist saves the run if a store is configured. Persistence failures are
// logged but never fail the run itself.
func (e *Engine) persist(ctx context.Context, run *core.WorkflowRun) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRun(ctx, run); err != nil {
		e.logger.Warn("Failed to persist workflow run", "run_id", run.ID, "error", err)
	}
}
