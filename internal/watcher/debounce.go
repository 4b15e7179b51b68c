package watcher

import (
	"sync"
	"time"
)

// debouncer runs fn once events have stopped arriving for duration.
// Rapid successive calls reset the timer. A zero duration runs fn
// synchronously. Both debounce and cancel report whether a pending call
// was dropped, so callers can balance their accounting.
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{duration: duration}
}

func (d *debouncer) debounce(fn func()) (dropped bool) {
	if d.duration <= 0 {
		fn()
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		dropped = d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
	return dropped
}

// cancel drops any pending call.
func (d *debouncer) cancel() (dropped bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		dropped = d.timer.Stop()
		d.timer = nil
	}
	return dropped
}
