package shared

import "time"

// Clock abstracts wall-clock reads so lifecycle timestamps are testable
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FakeClock is a manually advanced clock for tests
type FakeClock struct {
	now time.Time
}

// NewFakeClock creates a FakeClock pinned at t
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

// Now returns the pinned time
func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
