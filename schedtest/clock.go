// Package schedtest provides test fakes for every port the scheduler
// depends on, so scheduler tests can drive deterministic scenarios without
// a real executor, transfer service, or predictor warm-start state.
package schedtest

import (
	"sync"
	"time"

	"github.com/globus-compute/central-scheduler/ports"
)

// Clock is a settable fake implementing ports.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock initialized to t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now implements ports.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ ports.Clock = (*Clock)(nil)
