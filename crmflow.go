// Package crmflow provides a high-level façade over the workflow automation
// core: the event bus, the AI team meeting orchestrator, the workflow step
// engine and the trigger manager. Most applications interact with this
// package by:
//  1. Creating a CRMFlow via New() (optionally overriding the org profile,
//     model, stores and logger)
//  2. Registering integrations and saving workflow definitions
//  3. Emitting domain events and asking the AI team questions
//
// The façade delegates execution to the underlying packages while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable workflow store
// and a structured logger.
package crmflow

import (
	"context"

	"github.com/hupe1980/crmflow/bus"
	"github.com/hupe1980/crmflow/core"
	"github.com/hupe1980/crmflow/integration"
	"github.com/hupe1980/crmflow/logging"
	"github.com/hupe1980/crmflow/meeting"
	"github.com/hupe1980/crmflow/model"
	"github.com/hupe1980/crmflow/notify"
	"github.com/hupe1980/crmflow/persona"
	"github.com/hupe1980/crmflow/store"
	"github.com/hupe1980/crmflow/trigger"
	"github.com/hupe1980/crmflow/workflow"
)

// Options configures the CRMFlow instance.
type Options struct {
	// Org customizes the default AI team (company name, industry, persona
	// overrides).
	Org core.OrgConfig

	// Model backs the default team's personas. Nil personas answer with a
	// deterministic fallback template, which keeps demos and tests offline.
	Model model.Model

	// Store persists workflow definitions and runs (defaults to in-memory).
	Store core.WorkflowStore

	// Notifications receives notify action side effects (defaults to
	// in-memory).
	Notifications core.NotificationSink

	// Changes receives audit log action side effects (defaults to
	// in-memory).
	Changes core.ChangeLogger

	// MaxRecentEvents bounds the bus's diagnostic event log.
	MaxRecentEvents int

	// ContextWindow bounds how much transcript history each meeting turn
	// sees. Defaults to meeting.DefaultContextWindow.
	ContextWindow int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// CRMFlow is the high-level façade aggregating the bus, the AI team, the
// step engine and the trigger manager.
type CRMFlow struct {
	opts         Options
	bus          *bus.Bus
	store        core.WorkflowStore
	agents       map[string]core.AgentChat
	team         []*persona.Persona
	meeting      *meeting.Orchestrator
	integrations *integration.Registry
	engine       *workflow.Engine
	triggers     *trigger.Manager
}

// New creates a CRMFlow instance with optional overrides. Any unset service
// is initialized with an in-memory implementation, and the default AI team
// (CEO, sales, marketing, IT) is assembled from the org profile.
func New(optFns ...func(o *Options)) *CRMFlow {
	opts := Options{
		Store:         store.NewInMemory(),
		Notifications: notify.NewInMemorySink(),
		Changes:       notify.NewInMemoryChangeLog(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	eventBus := bus.New(func(o *bus.Options) {
		o.MaxRecentEvents = opts.MaxRecentEvents
		o.Logger = opts.Logger
	})

	team := persona.DefaultTeam(opts.Org, opts.Model, opts.Logger)
	agents := make(map[string]core.AgentChat, len(team))
	for _, p := range team {
		agents[p.ID()] = p
	}

	orchestrator := meeting.New(persona.Roster(team), agents, func(o *meeting.Options) {
		o.ContextWindow = opts.ContextWindow
		o.Logger = opts.Logger
	})

	integrations := integration.NewRegistry(opts.Logger)

	engine := workflow.New(func(o *workflow.Options) {
		o.Agents = agents
		o.Integrations = integrations
		o.Notifications = opts.Notifications
		o.Changes = opts.Changes
		o.Store = opts.Store
		o.Bus = eventBus
		o.Logger = opts.Logger
	})

	triggers := trigger.New(engine, eventBus, func(o *trigger.Options) {
		o.Store = opts.Store
		o.Logger = opts.Logger
	})

	return &CRMFlow{
		opts:         opts,
		bus:          eventBus,
		store:        opts.Store,
		agents:       agents,
		team:         team,
		meeting:      orchestrator,
		integrations: integrations,
		engine:       engine,
		triggers:     triggers,
	}
}

// Start syncs workflow triggers from the store and begins firing scheduled
// workflows.
func (f *CRMFlow) Start(ctx context.Context) error {
	if err := f.triggers.Sync(ctx); err != nil {
		return err
	}
	f.triggers.Start()
	return nil
}

// Stop halts scheduled triggers, waiting for in-flight scheduled runs.
func (f *CRMFlow) Stop() {
	f.triggers.Stop()
}

// Bus exposes the event bus for direct subscriptions.
func (f *CRMFlow) Bus() *bus.Bus { return f.bus }

// Meeting exposes the AI team meeting orchestrator.
func (f *CRMFlow) Meeting() *meeting.Orchestrator { return f.meeting }

// Integrations exposes the integration registry for registration and
// connection testing.
func (f *CRMFlow) Integrations() *integration.Registry { return f.integrations }

// Triggers exposes the trigger manager.
func (f *CRMFlow) Triggers() *trigger.Manager { return f.triggers }

// Team returns the assembled AI personas.
func (f *CRMFlow) Team() []*persona.Persona { return f.team }

// RegisterAgent adds a custom agent usable from workflow agent steps and
// meeting mentions. Register agents before emitting events or starting
// meetings; the agent map is not synchronized.
func (f *CRMFlow) RegisterAgent(a core.AgentChat) {
	f.agents[a.ID()] = a
}

// RegisterIntegration adds an integration adapter addressable from workflow
// integration steps.
func (f *CRMFlow) RegisterIntegration(i core.Integration) {
	f.integrations.Register(i)
}

// SaveWorkflow validates and persists a definition and (re-)registers its
// trigger. Disabled definitions are persisted but not triggered.
func (f *CRMFlow) SaveWorkflow(ctx context.Context, def *core.WorkflowDefinition) error {
	if err := workflow.Validate(def); err != nil {
		return err
	}
	if err := f.store.SaveDefinition(ctx, def); err != nil {
		return err
	}
	return f.triggers.Register(def)
}

// DeleteWorkflow removes a definition, its runs and its trigger wiring.
func (f *CRMFlow) DeleteWorkflow(ctx context.Context, id string) error {
	f.triggers.Unregister(id)
	return f.store.DeleteDefinition(ctx, id)
}

// Workflow returns the definition with the given id.
func (f *CRMFlow) Workflow(ctx context.Context, id string) (*core.WorkflowDefinition, error) {
	return f.store.GetDefinition(ctx, id)
}

// Workflows lists definitions, scoped to ownerID when non-empty.
func (f *CRMFlow) Workflows(ctx context.Context, ownerID string) ([]*core.WorkflowDefinition, error) {
	return f.store.ListDefinitions(ctx, ownerID)
}

// RunWorkflow starts a workflow immediately with a synthetic manual trigger
// carrying data.
func (f *CRMFlow) RunWorkflow(ctx context.Context, id string, data map[string]any) (*core.WorkflowRun, error) {
	return f.triggers.RunManual(ctx, id, data)
}

// Runs lists a workflow's runs, most recent first.
func (f *CRMFlow) Runs(ctx context.Context, workflowID string) ([]*core.WorkflowRun, error) {
	return f.store.ListRuns(ctx, workflowID)
}

// Emit publishes a domain event, synchronously running every matching
// trigger and subscriber.
func (f *CRMFlow) Emit(ctx context.Context, ev core.Event) {
	f.bus.Emit(ctx, ev)
}

// EmitEntityEvent publishes a "<entity>.<action>" event built from parts.
func (f *CRMFlow) EmitEntityEvent(ctx context.Context, action, entity, entityID string, data map[string]any, userID string) {
	f.bus.EmitEntityEvent(ctx, action, entity, entityID, data, userID)
}

// RecentEvents returns the bus's diagnostic event log, oldest first.
func (f *CRMFlow) RecentEvents(limit int) []core.Event {
	return f.bus.RecentEvents(limit)
}

// AskTeam routes a user message to the mentioned personas (the default
// target when no mention is present) and streams their replies. The returned
// channel closes after the last reply.
func (f *CRMFlow) AskTeam(ctx context.Context, message string, onStatus meeting.StatusFunc) <-chan core.MeetingMessage {
	targets, _ := f.meeting.ResolveTargets(message, f.activeIDs())
	return f.meeting.AskAgents(ctx, message, targets, onStatus)
}

// AskTeamSync is a synchronous helper that drains AskTeam's channel and
// returns the collected replies.
func (f *CRMFlow) AskTeamSync(ctx context.Context, message string) []core.MeetingMessage {
	targets, _ := f.meeting.ResolveTargets(message, f.activeIDs())
	return f.meeting.AskAgentsSync(ctx, message, targets, nil)
}

// activeIDs treats the whole roster as present in the façade-level meeting.
func (f *CRMFlow) activeIDs() []string {
	roster := f.meeting.Roster()
	ids := make([]string, len(roster))
	for i, p := range roster {
		ids[i] = p.ID
	}
	return ids
}
