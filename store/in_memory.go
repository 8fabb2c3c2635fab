package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/crmflow/core"
)

// InMemory is a volatile WorkflowStore keeping definitions and runs in
// process memory. All reads and writes operate on deep copies so callers can
// never mutate stored state through a returned pointer. Safe for concurrent
// use; best suited for tests, demos and single-process deployments.
type InMemory struct {
	mu          sync.RWMutex
	definitions map[string]*core.WorkflowDefinition
	runs        map[string]*core.WorkflowRun
}

var _ core.WorkflowStore = (*InMemory)(nil)

// NewInMemory creates an empty in-memory workflow store.
func NewInMemory() *InMemory {
	return &InMemory{
		definitions: map[string]*core.WorkflowDefinition{},
		runs:        map[string]*core.WorkflowRun{},
	}
}

// SaveDefinition inserts or updates a definition. Missing IDs and created
// timestamps are filled in; Updated is always refreshed.
func (s *InMemory) SaveDefinition(_ context.Context, def *core.WorkflowDefinition) error {
	if def == nil {
		return fmt.Errorf("cannot save nil definition")
	}
	if def.ID == "" {
		def.ID = core.NewID()
	}

	now := time.Now().UTC()
	if def.Created.IsZero() {
		def.Created = now
	}
	def.Updated = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.ID] = cloneDefinition(def)

	return nil
}

// GetDefinition returns a copy of the definition with the given id.
func (s *InMemory) GetDefinition(_ context.Context, id string) (*core.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrWorkflowNotFound, id)
	}
	return cloneDefinition(def), nil
}

// ListDefinitions returns the definitions owned by ownerID, sorted by
// creation time, oldest first. An empty ownerID lists all definitions.
func (s *InMemory) ListDefinitions(_ context.Context, ownerID string) ([]*core.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.WorkflowDefinition
	for _, def := range s.definitions {
		if ownerID != "" && def.OwnerID != ownerID {
			continue
		}
		out = append(out, cloneDefinition(def))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })

	return out, nil
}

// DeleteDefinition removes a definition and all of its runs.
func (s *InMemory) DeleteDefinition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[id]; !ok {
		return fmt.Errorf("%w: %q", core.ErrWorkflowNotFound, id)
	}
	delete(s.definitions, id)

	for runID, run := range s.runs {
		if run.WorkflowID == id {
			delete(s.runs, runID)
		}
	}

	return nil
}

// SaveRun inserts or updates a run.
func (s *InMemory) SaveRun(_ context.Context, run *core.WorkflowRun) error {
	if run == nil {
		return fmt.Errorf("cannot save nil run")
	}
	if run.ID == "" {
		run.ID = core.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()

	return nil
}

// GetRun returns a copy of the run with the given id.
func (s *InMemory) GetRun(_ context.Context, id string) (*core.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrRunNotFound, id)
	}
	return run.Clone(), nil
}

// ListRuns returns the runs of a workflow, most recent first. An empty
// workflowID lists all runs.
func (s *InMemory) ListRuns(_ context.Context, workflowID string) ([]*core.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.WorkflowRun
	for _, run := range s.runs {
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		out = append(out, run.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	return out, nil
}

// cloneDefinition deep-copies a definition via its steps slice; step configs
// are pointers into freshly copied structs.
func cloneDefinition(def *core.WorkflowDefinition) *core.WorkflowDefinition {
	clone := *def
	clone.Steps = make([]core.WorkflowStep, len(def.Steps))
	for i, step := range def.Steps {
		cp := step
		if step.Agent != nil {
			a := *step.Agent
			cp.Agent = &a
		}
		if step.Condition != nil {
			c := *step.Condition
			cp.Condition = &c
		}
		if step.Integration != nil {
			in := *step.Integration
			in.Params = cloneMap(step.Integration.Params)
			cp.Integration = &in
		}
		if step.Action != nil {
			ac := *step.Action
			if step.Action.Notify != nil {
				n := *step.Action.Notify
				ac.Notify = &n
			}
			if step.Action.Log != nil {
				l := *step.Action.Log
				l.BeforeState = cloneMap(step.Action.Log.BeforeState)
				l.AfterState = cloneMap(step.Action.Log.AfterState)
				ac.Log = &l
			}
			if step.Action.Emit != nil {
				e := *step.Action.Emit
				e.Data = cloneMap(step.Action.Emit.Data)
				ac.Emit = &e
			}
			cp.Action = &ac
		}
		if step.Delay != nil {
			d := *step.Delay
			cp.Delay = &d
		}
		clone.Steps[i] = cp
	}
	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
