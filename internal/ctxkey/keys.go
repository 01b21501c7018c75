// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Used by HTTP middleware to store and retrieve the logger with request_id/agent_id fields.
type LoggerKey struct{}

// AgentIDKey is the context key type for the authenticated agent ID,
// set by the auth middleware after API key validation.
type AgentIDKey struct{}

// AgentKey is the context key type for the resolved agent record, set by
// the auth middleware so later middleware can consult per-agent settings.
type AgentKey struct{}
