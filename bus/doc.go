// Package bus implements the in-memory publish/subscribe hub that decouples
// CRM entity mutations from their consumers (workflow triggers, notification
// fan-out, diagnostics). It supports exact-type, wildcard ("*") and prefix
// pattern ("leads.*") subscriptions, sequential in-order delivery and a
// bounded recent-event log.
package bus
