package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// CounterStore is the outbound port for windowed request counters.
//
// Implementations increment an integer counter per key and expire the key
// with the window. The interface is storage-agnostic, allowing
// implementations backed by in-memory maps or external counter services.
type CounterStore interface {
	// Incr atomically increments the counter for key, setting its TTL to
	// window when the counter is created. It returns the post-increment
	// count and the remaining time until the counter resets.
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetIn time.Duration, err error)
}

// Limiter enforces a fixed-window rate limit per agent on top of a CounterStore.
//
// Availability is prioritized over strict enforcement: when the counter store
// errors, the request is allowed (fail-open) and a warning is logged. The
// gateway must never become a harder outage than the backends it protects.
type Limiter struct {
	store  CounterStore
	config Config
	logger *slog.Logger
}

// NewLimiter creates a Limiter with the given store and config.
func NewLimiter(store CounterStore, config Config, logger *slog.Logger) *Limiter {
	if config.Requests <= 0 {
		config.Requests = 1000
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &Limiter{store: store, config: config, logger: logger}
}

// Allow checks whether the agent identified by agentID may proceed under the
// global limit. The first Requests calls within a window are allowed;
// subsequent calls are denied until the window resets.
func (l *Limiter) Allow(ctx context.Context, agentID string) (Result, error) {
	return l.AllowLimit(ctx, agentID, l.config.Requests)
}

// AllowLimit checks the agent against a specific per-window limit, used for
// agents carrying a rate limit override. A non-positive limit falls back to
// the global limit.
func (l *Limiter) AllowLimit(ctx context.Context, agentID string, limit int) (Result, error) {
	if limit <= 0 {
		limit = l.config.Requests
	}
	key := FormatKey(agentID)

	count, resetIn, err := l.store.Incr(ctx, key, l.config.Window)
	if err != nil {
		// Fail open: a broken counter store must not block agents.
		l.logger.Warn("rate limit counter store unavailable, failing open",
			"agent_id", agentID,
			"error", err,
		)
		return Result{
			Allowed:    true,
			Limit:      limit,
			Remaining:  limit,
			FailedOpen: true,
		}, nil
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	if count > limit {
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: resetIn,
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
	}, nil
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config {
	return l.config
}
