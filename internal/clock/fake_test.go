package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_Now_MovesOnlyOnAdvance(t *testing.T) {
	req := require.New(t)
	c := Fake(epoch)

	req.True(c.Now().Equal(epoch))
	c.Advance(5 * time.Second)
	req.True(c.Now().Equal(epoch.Add(5 * time.Second)))
}

func TestFakeClock_AfterFunc_FiresAtDeadline(t *testing.T) {
	req := require.New(t)
	c := Fake(epoch)
	calls := 0

	c.AfterFunc(3*time.Second, func() { calls++ })

	c.Advance(2999 * time.Millisecond)
	req.Equal(0, calls)

	c.Advance(time.Millisecond)
	req.Equal(1, calls)

	// One-shot: never fires twice
	c.Advance(time.Hour)
	req.Equal(1, calls)
	req.Zero(c.PendingCount())
}

func TestFakeClock_AfterFunc_StopPreventsFiring(t *testing.T) {
	req := require.New(t)
	c := Fake(epoch)
	calls := 0

	timer := c.AfterFunc(time.Second, func() { calls++ })
	req.True(timer.Stop())
	req.False(timer.Stop(), "a timer can only be stopped once")

	c.Advance(2 * time.Second)
	req.Equal(0, calls)
}

func TestFakeClock_AfterFunc_CallbackCancelsLaterTimer(t *testing.T) {
	req := require.New(t)
	c := Fake(epoch)
	var second *Timer
	fired := 0

	c.AfterFunc(time.Second, func() { second.Stop() })
	second = c.AfterFunc(2*time.Second, func() { fired++ })

	// Both are due in the same Advance; the first cancels the second
	c.Advance(3 * time.Second)
	req.Equal(0, fired)
}

func TestFakeClock_AfterFunc_NonPositiveRunsImmediately(t *testing.T) {
	c := Fake(epoch)
	called := false
	c.AfterFunc(0, func() { called = true })
	require.True(t, called)
}

func TestFakeClock_Ticker_DropsWhenFull(t *testing.T) {
	req := require.New(t)
	c := Fake(epoch)
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	c.Advance(5 * time.Minute)

	select {
	case <-ticker.C:
	default:
		req.Fail("ticker did not fire")
	}
	select {
	case <-ticker.C:
		req.Fail("ticker buffered more than one tick")
	default:
	}
	req.Equal(1, c.PendingCount())
}

func TestFakeClock_WaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})

	go func() {
		c.WaitForTimers(1)
		close(done)
	}()

	c.NewTicker(time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForTimers did not observe the registered ticker")
	}
}
