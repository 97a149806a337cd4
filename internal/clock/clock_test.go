package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pat-drk/schedsync/internal/clock"
)

func TestMockClockTimer(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock := clock.NewMock(start)

	timer := mock.NewTimer(5 * time.Second)

	// Not yet due.
	mock.Advance(4 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	mock.Advance(2 * time.Second)
	select {
	case fired := <-timer.C():
		assert.Equal(t, start.Add(5*time.Second), fired)
	default:
		t.Fatal("timer did not fire")
	}

	assert.Equal(t, start.Add(6*time.Second), mock.Now())
}

func TestMockClockTimerStop(t *testing.T) {
	mock := clock.NewMock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	timer := mock.NewTimer(time.Second)
	require.True(t, timer.Stop())
	require.False(t, timer.Stop(), "second stop reports already stopped")

	mock.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestMockClockTickerReschedules(t *testing.T) {
	mock := clock.NewMock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	ticker := mock.NewTicker(10 * time.Second)
	defer ticker.Stop()

	fired := 0
	for i := 0; i < 3; i++ {
		mock.Advance(10 * time.Second)
		select {
		case <-ticker.C():
			fired++
		default:
		}
	}

	assert.Equal(t, 3, fired)
}

func TestMockClockBlockUntil(t *testing.T) {
	mock := clock.NewMock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	done := make(chan struct{})
	go func() {
		defer close(done)
		timer := mock.NewTimer(time.Second)
		<-timer.C()
	}()

	mock.BlockUntil(1)
	mock.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine never observed timer fire")
	}
}

func TestSystemClockNow(t *testing.T) {
	sys := clock.NewSystem()

	before := time.Now()
	now := sys.Now()
	after := time.Now()

	require.False(t, now.Before(before))
	require.False(t, now.After(after))
}
