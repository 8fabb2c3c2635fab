package core

import "errors"

// Sentinel errors surfaced by the crmflow components. Collaborator failures
// (agent calls, integrations) are reported as data per the propagation
// policy; these sentinels cover programmer and configuration errors that are
// detected synchronously.
var (
	// ErrAgentNotFound indicates a step or meeting referenced an agent ID
	// that is not registered.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrUnknownIntegration indicates an integration step referenced an
	// unregistered integration ID.
	ErrUnknownIntegration = errors.New("unknown integration")

	// ErrUnsupportedAction indicates an integration does not declare the
	// requested action name.
	ErrUnsupportedAction = errors.New("unsupported integration action")

	// ErrUnknownStepType indicates a definition contained a step type
	// outside the closed set.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrUnresolvedVariable indicates a $trigger or $step reference could
	// not be resolved during interpolation.
	ErrUnresolvedVariable = errors.New("unresolved variable reference")

	// ErrInvalidDefinition indicates a workflow definition failed
	// validation before execution.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrWorkflowNotFound indicates a store lookup by ID found nothing.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates a run lookup by ID found nothing.
	ErrRunNotFound = errors.New("workflow run not found")
)
