// Package clock abstracts time for components that schedule periodic
// work, so tests can drive heartbeats and wait windows deterministically.
package clock

import "time"

// Clock supplies wall-clock time and timer primitives.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a timer that fires once after d.
	NewTimer(d time.Duration) Timer

	// NewTicker returns a ticker that fires every d.
	NewTicker(d time.Duration) Ticker
}

// Timer fires once on its channel after its duration elapses.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Ticker fires repeatedly on its channel at its interval.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock delegates to the time package.
type SystemClock struct{}

// NewSystem creates a real clock.
func NewSystem() *SystemClock {
	return &SystemClock{}
}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// NewTimer returns a real timer.
func (SystemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{timer: time.NewTimer(d)}
}

// NewTicker returns a real ticker.
func (SystemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{ticker: time.NewTicker(d)}
}

type systemTimer struct {
	timer *time.Timer
}

func (t *systemTimer) C() <-chan time.Time { return t.timer.C }
func (t *systemTimer) Stop() bool          { return t.timer.Stop() }

type systemTicker struct {
	ticker *time.Ticker
}

func (t *systemTicker) C() <-chan time.Time { return t.ticker.C }
func (t *systemTicker) Stop()               { t.ticker.Stop() }
