// Package clock abstracts wall-clock time so expiry and scheduling rules can
// be exercised in tests without sleeping.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source handed to services, caches and the token issuer.
type Clock = clockwork.Clock

// New returns the real clock.
func New() Clock {
	return clockwork.NewRealClock()
}

// ManagedClock is a hand-driven Clock for tests. Timers and tickers created
// from it fire only when the clock is moved forward.
type ManagedClock struct {
	clockwork.FakeClock
}

// NewManaged returns a ManagedClock frozen at startTime.
func NewManaged(startTime time.Time) *ManagedClock {
	return &ManagedClock{FakeClock: clockwork.NewFakeClockAt(startTime)}
}

// WarpForward moves the clock forward by offset and returns the new time.
func (c *ManagedClock) WarpForward(offset time.Duration) time.Time {
	c.Advance(offset)
	return c.Now()
}
