package notify

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebounceCollapsesBurst(t *testing.T) {
	var calls atomic.Int64
	r := NewDebouncedRefresher(50*time.Millisecond, func() { calls.Add(1) })
	defer r.Stop()

	for i := 0; i < 5; i++ {
		r.ScheduleRefresh()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// Quiet period: no further refreshes fire
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())
}

func TestDebounceIsTrailingEdge(t *testing.T) {
	var calls atomic.Int64
	r := NewDebouncedRefresher(60*time.Millisecond, func() { calls.Add(1) })
	defer r.Stop()

	r.ScheduleRefresh()
	time.Sleep(40 * time.Millisecond)
	r.ScheduleRefresh() // resets the timer: nothing fired yet

	assert.Equal(t, int64(0), calls.Load(), "timer restarts on every call")
	assert.Eventually(t, func() bool { return calls.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestDebounceSeparateBursts(t *testing.T) {
	var calls atomic.Int64
	r := NewDebouncedRefresher(20*time.Millisecond, func() { calls.Add(1) })
	defer r.Stop()

	r.ScheduleRefresh()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 2*time.Millisecond)

	r.ScheduleRefresh()
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 2*time.Millisecond)
}

func TestStopCancelsPendingRefresh(t *testing.T) {
	var calls atomic.Int64
	r := NewDebouncedRefresher(30*time.Millisecond, func() { calls.Add(1) })

	r.ScheduleRefresh()
	r.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), calls.Load())
}
