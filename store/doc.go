// Package store provides implementations of the workflow persistence
// contract: an in-memory store for tests and single-process use, and a
// SQLite-backed store (subpackage sqlite) for durable deployments.
package store
