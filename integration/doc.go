// Package integration provides the pluggable connector layer used by
// workflow integration steps: a registry that validates IDs and action names
// before dispatch, plus concrete adapters (Slack incoming webhooks, generic
// HTTP webhooks). Each adapter declares its supported actions and exposes the
// uniform Execute/TestConnection contract.
package integration
