package hub

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of raw signals into one settle callback per
// uninterrupted quiet period. It holds at most one pending timer.
type Debouncer struct {
	quiet    time.Duration
	onSettle func()

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64 // bumped on every Schedule/Cancel; stale timers compare against it
	cancelled bool

	// fireMu is held while onSettle runs so Cancel can wait for it.
	fireMu sync.Mutex
}

// NewDebouncer returns a debouncer that calls onSettle after quiet has
// elapsed with no further Schedule calls.
func NewDebouncer(quiet time.Duration, onSettle func()) *Debouncer {
	return &Debouncer{quiet: quiet, onSettle: onSettle}
}

// Schedule (re)starts the quiet-period timer. No-op after Cancel.
func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelled {
		return
	}
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(gen) })
}

// Pending reports whether a settle is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel stops the pending timer and disables the debouncer for good.
// When Cancel returns, no settle is running and none will run.
// Must not be called from inside onSettle.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.cancelled = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	// Wait out a settle that passed its generation check before we got here.
	d.fireMu.Lock()
	d.fireMu.Unlock()
}

func (d *Debouncer) fire(gen uint64) {
	d.fireMu.Lock()
	defer d.fireMu.Unlock()

	d.mu.Lock()
	if d.cancelled || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.onSettle()
}
