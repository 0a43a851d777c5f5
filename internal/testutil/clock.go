package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a test Clock: 2024-01-15T10:00:00Z.
var Epoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// Clock is a deterministic wall clock for tests.
//
// Each call to Now returns the current reading and then advances it by the
// configured step, so a sequence of calls is strictly increasing when step
// is positive and constant when step is zero. The same sequence of calls
// always yields the same times, which keeps golden traces stable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu      sync.Mutex
	start   time.Time
	step    time.Duration
	current time.Time
}

// NewClock creates a clock reading start, advancing by step per Now call.
// A zero start means Epoch.
func NewClock(start time.Time, step time.Duration) *Clock {
	if start.IsZero() {
		start = Epoch
	}
	start = start.UTC()
	return &Clock{start: start, step: step, current: start}
}

// Now returns the current reading and advances the clock by one step.
//
// Its signature matches the func() time.Time clock options used across
// the module.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.current
	c.current = c.current.Add(c.step)
	return t
}

// Current returns the reading the next Now call will return, without
// advancing.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Reset returns the clock to its start reading.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.start
}
