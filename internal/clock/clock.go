// Package clock abstracts the time source used by the chat core so that
// typing debounce timers and the room reaper can be driven deterministically
// in tests. Production code uses Real(); tests use Fake() and call Advance.
package clock

import "time"

// Clock is the subset of the time package the chat server depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine once d has elapsed (Real) or
	// synchronously from Advance (Fake). The returned Timer can cancel it.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It reports whether the call stopped
// the timer; false means it already fired or was already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Ticker delivers periodic ticks on C. C has capacity 1 and drops ticks the
// consumer is too slow to read, like time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }
