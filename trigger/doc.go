// Package trigger connects workflow definitions to the events, schedules
// and manual actions that start them.
//
// The Manager owns one registration per workflow: event triggers become bus
// subscriptions (exact event types or "prefix.*" patterns), schedule
// triggers become cron entries firing synthetic "workflow.scheduled" events, and
// manual workflows wait for RunManual. Registrations replace on update and
// disappear when a definition is disabled or deleted, so the manager can be
// driven directly from a definition CRUD layer.
package trigger
