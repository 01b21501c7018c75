// Package ratelimit provides rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// Config defines the rate limiting parameters.
type Config struct {
	// Requests is the number of allowed requests in the window.
	Requests int

	// Window is the fixed time window for the rate limit.
	Window time.Duration
}

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the configured request budget for the window.
	Limit int

	// Remaining is the number of remaining requests in the current window.
	Remaining int

	// RetryAfter is the duration until the window resets.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration

	// FailedOpen is true when the counter store errored and the request
	// was allowed without counting.
	FailedOpen bool
}

// keyPrefix is the base prefix for all rate limit keys.
const keyPrefix = "ratelimit"

// FormatKey returns a structured rate limit key for an agent.
// Format: "ratelimit:agent:{agentID}"
func FormatKey(agentID string) string {
	return fmt.Sprintf("%s:agent:%s", keyPrefix, agentID)
}
