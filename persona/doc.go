// Package persona implements the chat-capable agent identities (ceo, sales,
// marketing, it) that meetings and workflow agent steps talk to. A persona
// wraps a model.Model with a role-specific system prompt derived from the
// tenant's OrgConfig, and degrades to a template response when no model is
// configured.
package persona
