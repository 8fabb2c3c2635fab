// Package core provides the foundational domain types and interfaces used by
// crmflow. It defines the core abstractions for:
//
//   - Events (immutable entity.action records flowing through the bus)
//   - Participants & meeting messages (multi-agent conversation primitives)
//   - Workflow definitions, steps and runs (declarative automation)
//   - Pluggable collaborators (agent chat, integrations, notification sink,
//     change log, workflow persistence)
//
// The package intentionally keeps implementation concerns (the event bus,
// the step engine, concrete personas, persistence backends) out of scope,
// exposing small interfaces to enable custom backends and extensions.
package core
