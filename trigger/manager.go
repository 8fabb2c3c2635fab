package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/crmflow/bus"
	"github.com/hupe1980/crmflow/core"
	"github.com/hupe1980/crmflow/logging"
	"github.com/hupe1980/crmflow/workflow"
)

// Options configures the trigger manager.
type Options struct {
	// Store persists definitions and is consulted for the freshest version
	// of a workflow before each run. Optional; without it the manager runs
	// the definition captured at registration time.
	Store core.WorkflowStore

	// Logger receives structured manager logs.
	Logger logging.Logger
}

// Manager connects workflow definitions to their triggers. Event-triggered
// workflows are subscribed on the bus, scheduled workflows are registered
// with a cron runner, and manual workflows are started explicitly via
// RunManual.
//
// Registrations are keyed by workflow ID; re-registering a workflow replaces
// its previous trigger. Disabled definitions are never registered.
type Manager struct {
	engine *workflow.Engine
	bus    *bus.Bus
	store  core.WorkflowStore
	logger logging.Logger

	cron *cron.Cron

	mu            sync.Mutex
	registrations map[string]*registration
}

// registration tracks how one workflow is currently wired.
type registration struct {
	def         *core.WorkflowDefinition
	triggerType core.TriggerType
	unsubscribe bus.UnsubscribeFunc
	cronID      cron.EntryID
}

// New creates a trigger manager bound to the given engine and bus.
func New(engine *workflow.Engine, eventBus *bus.Bus, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Manager{
		engine:        engine,
		bus:           eventBus,
		store:         opts.Store,
		logger:        opts.Logger,
		cron:          cron.New(),
		registrations: map[string]*registration{},
	}
}

// Start begins firing scheduled triggers. Event triggers are live as soon as
// they are registered, independent of Start.
func (m *Manager) Start() {
	m.cron.Start()
}

// Stop halts scheduled triggers and waits for in-flight scheduled runs to
// finish.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
}

// Register wires the definition's trigger. A disabled definition is
// unregistered instead, so Register can be called unconditionally after
// every definition update.
func (m *Manager) Register(def *core.WorkflowDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("cannot register workflow without an id")
	}

	m.Unregister(def.ID)

	if !def.Enabled {
		m.logger.Debug("Skipping trigger registration for disabled workflow", "workflow_id", def.ID)
		return nil
	}

	switch def.TriggerType {
	case core.TriggerEvent:
		return m.registerEvent(def)
	case core.TriggerSchedule:
		return m.registerSchedule(def)
	case core.TriggerManual:
		m.track(def.ID, &registration{def: def, triggerType: core.TriggerManual})
		return nil
	default:
		return fmt.Errorf("%w: unknown trigger type %q", core.ErrInvalidDefinition, def.TriggerType)
	}
}

func (m *Manager) registerEvent(def *core.WorkflowDefinition) error {
	eventType := def.Trigger.EventType
	if eventType == "" {
		return fmt.Errorf("%w: event trigger requires an event type", core.ErrInvalidDefinition)
	}

	workflowID := def.ID
	handler := func(ctx context.Context, ev core.Event) error {
		return m.execute(ctx, workflowID, ev)
	}

	var unsub bus.UnsubscribeFunc
	if strings.HasSuffix(eventType, "*") {
		unsub = m.bus.OnPattern(eventType, handler)
	} else {
		unsub = m.bus.On(eventType, handler)
	}

	m.track(def.ID, &registration{def: def, triggerType: core.TriggerEvent, unsubscribe: unsub})
	m.logger.Info("Registered event trigger", "workflow_id", def.ID, "event_type", eventType)

	return nil
}

func (m *Manager) registerSchedule(def *core.WorkflowDefinition) error {
	spec := def.Trigger.Schedule
	if spec == "" {
		return fmt.Errorf("%w: schedule trigger requires a cron expression", core.ErrInvalidDefinition)
	}

	workflowID := def.ID
	id, err := m.cron.AddFunc(spec, func() {
		ev := core.NewEvent("workflow.scheduled", map[string]any{
			"workflow_id": workflowID,
			"schedule":    spec,
		})
		if err := m.execute(context.Background(), workflowID, ev); err != nil {
			m.logger.Error("Scheduled workflow run failed", "workflow_id", workflowID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: invalid cron expression %q: %v", core.ErrInvalidDefinition, spec, err)
	}

	m.track(def.ID, &registration{def: def, triggerType: core.TriggerSchedule, cronID: id})
	m.logger.Info("Registered schedule trigger", "workflow_id", def.ID, "schedule", spec)

	return nil
}

// Unregister removes the workflow's trigger wiring. Unknown IDs are a no-op.
func (m *Manager) Unregister(workflowID string) {
	m.mu.Lock()
	reg, ok := m.registrations[workflowID]
	if ok {
		delete(m.registrations, workflowID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if reg.unsubscribe != nil {
		reg.unsubscribe()
	}
	if reg.triggerType == core.TriggerSchedule {
		m.cron.Remove(reg.cronID)
	}
}

func (m *Manager) track(workflowID string, reg *registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations[workflowID] = reg
}

// Registered reports whether the workflow currently has a live trigger.
func (m *Manager) Registered(workflowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.registrations[workflowID]
	return ok
}

// Sync registers every enabled definition from the store, replacing existing
// registrations. Typically called once at startup.
func (m *Manager) Sync(ctx context.Context) error {
	if m.store == nil {
		return fmt.Errorf("no workflow store configured")
	}

	defs, err := m.store.ListDefinitions(ctx, "")
	if err != nil {
		return fmt.Errorf("list definitions: %w", err)
	}

	for _, def := range defs {
		if err := m.Register(def); err != nil {
			return fmt.Errorf("register workflow %q: %w", def.ID, err)
		}
	}

	m.logger.Info("Synced workflow triggers", "count", len(defs))

	return nil
}

// RunManual starts the workflow immediately with a synthetic manual trigger
// event carrying the supplied data. It works for any trigger type so
// operators can test event and schedule workflows on demand.
func (m *Manager) RunManual(ctx context.Context, workflowID string, data map[string]any) (*core.WorkflowRun, error) {
	ev := core.NewEvent("manual.trigger", data)
	ev.EntityID = workflowID

	def, err := m.definition(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	run, err := m.engine.Run(ctx, def, ev)
	m.bumpRunCount(ctx, def)

	return run, err
}

// execute runs the workflow for one trigger firing. Handler errors propagate
// to the bus, which logs them without affecting other subscribers.
func (m *Manager) execute(ctx context.Context, workflowID string, ev core.Event) error {
	def, err := m.definition(ctx, workflowID)
	if err != nil {
		return err
	}
	if !def.Enabled {
		return nil
	}

	_, err = m.engine.Run(ctx, def, ev)
	m.bumpRunCount(ctx, def)

	return err
}

// definition returns the freshest version of the workflow, preferring the
// store over the registration-time snapshot.
func (m *Manager) definition(ctx context.Context, workflowID string) (*core.WorkflowDefinition, error) {
	if m.store != nil {
		return m.store.GetDefinition(ctx, workflowID)
	}

	m.mu.Lock()
	reg, ok := m.registrations[workflowID]
	m.mu.Unlock()

	if !ok || reg.def == nil {
		return nil, fmt.Errorf("%w: %q", core.ErrWorkflowNotFound, workflowID)
	}
	return reg.def, nil
}

// bumpRunCount persists the definition's run counter. Failures only warn;
// bookkeeping never fails a run.
func (m *Manager) bumpRunCount(ctx context.Context, def *core.WorkflowDefinition) {
	def.RunCount++
	if m.store == nil {
		return
	}
	if err := m.store.SaveDefinition(ctx, def); err != nil {
		m.logger.Warn("Failed to persist run count", "workflow_id", def.ID, "error", err)
	}
}
