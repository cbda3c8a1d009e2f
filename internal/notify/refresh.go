package notify

import (
	"sync"
	"time"
)

// RefreshScheduler is the trigger contract for the data-refresh
// collaborator: the pipeline asks for a coarse re-fetch of order/earnings
// data, the host app performs it
type RefreshScheduler interface {
	ScheduleRefresh()
}

// DebouncedRefresher collapses a burst of refresh triggers into a single
// trailing-edge call: the timer resets on every trigger and the refresh
// runs once the window has been quiet
type DebouncedRefresher struct {
	mu     sync.Mutex
	window time.Duration
	fn     func()
	timer  *time.Timer
}

// NewDebouncedRefresher creates a refresher that calls fn after `window`
// of quiet following the last trigger
func NewDebouncedRefresher(window time.Duration, fn func()) *DebouncedRefresher {
	return &DebouncedRefresher{
		window: window,
		fn:     fn,
	}
}

// ScheduleRefresh arms (or re-arms) the debounce timer. Last call wins.
func (r *DebouncedRefresher) ScheduleRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.window, r.fn)
}

// Stop cancels any pending refresh
func (r *DebouncedRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
