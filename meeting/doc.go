// Package meeting implements the multi-agent meeting orchestrator: a shared
// transcript, @mention-based target resolution and strictly sequential turn
// execution so each agent can react to what prior agents in the same turn
// already said.
package meeting
