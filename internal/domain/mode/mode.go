// Package mode holds the gateway's runtime enforcement mode.
package mode

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Mode selects how verdicts are applied to responses.
type Mode string

const (
	// Observe logs what enforcement would do but allows every action.
	Observe Mode = "observe"
	// Enforce applies verdicts: pending and deny block the action.
	Enforce Mode = "enforce"
)

// Parse normalizes a mode string. Empty input defaults to Enforce.
func Parse(s string) (Mode, error) {
	switch Mode(s) {
	case Observe:
		return Observe, nil
	case Enforce, "":
		return Enforce, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be observe or enforce", s)
	}
}

// Controller is a concurrency-safe holder for the current mode.
// Reads sit on the request hot path, so the mode lives in an atomic.
type Controller struct {
	current atomic.Value // Mode
	changed atomic.Value // time.Time
}

// NewController returns a controller starting in the given mode.
func NewController(initial Mode) *Controller {
	c := &Controller{}
	c.current.Store(initial)
	c.changed.Store(time.Time{})
	return c
}

// Current returns the active mode.
func (c *Controller) Current() Mode {
	return c.current.Load().(Mode)
}

// Set switches the active mode and records the transition time.
// Returns the previous mode.
func (c *Controller) Set(m Mode, at time.Time) Mode {
	prev := c.current.Swap(m).(Mode)
	if prev != m {
		c.changed.Store(at)
	}
	return prev
}

// ChangedAt returns when the mode last changed. The zero time means the
// mode has not changed since startup.
func (c *Controller) ChangedAt() time.Time {
	return c.changed.Load().(time.Time)
}
