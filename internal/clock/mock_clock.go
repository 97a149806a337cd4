package clock

import (
	"sync"
	"time"
)

// MockClock is a manually advanced clock for tests. Timers and tickers
// fire only when Advance moves the clock past their deadlines.
type MockClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*mockWaiter
}

type mockWaiter struct {
	target  time.Time
	period  time.Duration // zero for timers
	ch      chan time.Time
	stopped bool
}

// NewMock creates a mock clock starting at the given time.
func NewMock(start time.Time) *MockClock {
	c := &MockClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Now returns the mock's current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps the clock to t without firing waiters scheduled before t.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward, firing every timer and ticker whose
// deadline falls within the window. Tickers reschedule themselves.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.now.Add(d)
	for {
		next := c.earliestLocked(end)
		if next == nil {
			break
		}
		c.now = next.target
		select {
		case next.ch <- c.now:
		default:
		}
		if next.period > 0 {
			next.target = next.target.Add(next.period)
		} else {
			next.stopped = true
		}
	}
	c.now = end
}

// earliestLocked finds the live waiter with the soonest deadline at or
// before end, or nil when none is due.
func (c *MockClock) earliestLocked(end time.Time) *mockWaiter {
	var best *mockWaiter
	for _, w := range c.waiters {
		if w.stopped || w.target.After(end) {
			continue
		}
		if best == nil || w.target.Before(best.target) {
			best = w
		}
	}
	return best
}

// BlockUntil waits until at least n timers or tickers are pending.
// Tests call it to synchronize with goroutines that register waiters.
func (c *MockClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.liveLocked() < n {
		c.cond.Wait()
	}
}

func (c *MockClock) liveLocked() int {
	live := 0
	for _, w := range c.waiters {
		if !w.stopped {
			live++
		}
	}
	return live
}

// NewTimer returns a timer that fires when the clock advances past d.
func (c *MockClock) NewTimer(d time.Duration) Timer {
	return &mockTimer{clock: c, w: c.register(d, 0)}
}

// NewTicker returns a ticker driven by Advance.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	return &mockTicker{clock: c, w: c.register(d, d)}
}

func (c *MockClock) register(d, period time.Duration) *mockWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &mockWaiter{
		target: c.now.Add(d),
		period: period,
		ch:     make(chan time.Time, 1),
	}
	c.waiters = append(c.waiters, w)
	c.cond.Broadcast()
	return w
}

func (c *MockClock) stop(w *mockWaiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasLive := !w.stopped
	w.stopped = true
	return wasLive
}

type mockTimer struct {
	clock *MockClock
	w     *mockWaiter
}

func (t *mockTimer) C() <-chan time.Time { return t.w.ch }
func (t *mockTimer) Stop() bool          { return t.clock.stop(t.w) }

type mockTicker struct {
	clock *MockClock
	w     *mockWaiter
}

func (t *mockTicker) C() <-chan time.Time { return t.w.ch }
func (t *mockTicker) Stop()               { t.clock.stop(t.w) }
