// Package workflow contains the step engine that executes workflow
// definitions, the variable interpolation mini-language and definition
// validation.
//
// A definition is an ordered list of typed steps (agent, condition,
// integration, action, delay) started by a trigger. The engine executes
// steps strictly in order, records each step's output under its ID and
// makes those outputs available to later steps through $step_<id>.<field>
// references, alongside $trigger.<field> references into the triggering
// event's payload. A false condition short-circuits the run successfully;
// a step error fails the run while retaining the outputs recorded so far.
//
// Validation is two-layered: ParseDefinition checks incoming JSON against
// a structural schema, and Validate enforces the semantic rules (unique
// step IDs, config variants matching step types, supported condition
// operators, no forward step references).
package workflow
