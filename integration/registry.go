package integration

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/crmflow/core"
	"github.com/hupe1980/crmflow/logging"
)

// Registry is the lookup table of integration adapters available to
// workflow integration steps. It validates the integration ID and action
// name before any adapter code runs, so configuration errors fail fast
// without consuming a remote call.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]core.Integration
	logger logging.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Registry{byID: map[string]core.Integration{}, logger: logger}
}

// Register adds (or replaces) an integration adapter.
func (r *Registry) Register(i core.Integration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[i.ID()] = i
}

// Get returns the integration with the given ID.
func (r *Registry) Get(id string) (core.Integration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	return i, ok
}

// IDs returns the registered integration identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Execute validates the integration ID and action, then delegates to the
// adapter. Unknown IDs and unsupported actions are reported as structured
// failures without reaching the adapter; only genuine transport failures
// surface as errors.
func (r *Registry) Execute(ctx context.Context, id, action string, params map[string]any) (*core.IntegrationResult, error) {
	integ, ok := r.Get(id)
	if !ok {
		r.logger.Warn("integration not registered", "integration_id", id)
		return &core.IntegrationResult{
			Success: false,
			Error:   fmt.Sprintf("%s: %s", core.ErrUnknownIntegration.Error(), id),
		}, nil
	}
	if !slices.Contains(integ.Actions(), action) {
		r.logger.Warn("integration action not supported", "integration_id", id, "action", action)
		return &core.IntegrationResult{
			Success: false,
			Error:   fmt.Sprintf("%s: %s.%s", core.ErrUnsupportedAction.Error(), id, action),
		}, nil
	}
	return integ.Execute(ctx, action, params)
}
