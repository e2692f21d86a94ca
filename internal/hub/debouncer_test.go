package hub

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Debouncer: bursts collapse to one settle per quiet period
// =============================================================================

func TestDebouncer_BurstSettlesOnce(t *testing.T) {
	var settles atomic.Int32
	d := NewDebouncer(40*time.Millisecond, func() { settles.Add(1) })

	for i := 0; i < 10; i++ {
		d.Schedule()
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, d.Pending())

	eventually(t, func() bool { return settles.Load() == 1 }, "burst should settle once")
	quietFor(t, 120*time.Millisecond, func() bool { return settles.Load() > 1 }, "no extra settle")
	assert.False(t, d.Pending())
}

func TestDebouncer_SpacedEventsSettleEach(t *testing.T) {
	var settles atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { settles.Add(1) })

	for i := 1; i <= 3; i++ {
		d.Schedule()
		want := int32(i)
		eventually(t, func() bool { return settles.Load() == want }, "each spaced event settles")
	}
}

func TestDebouncer_CancelPreventsSettle(t *testing.T) {
	var settles atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { settles.Add(1) })

	d.Schedule()
	d.Cancel()
	assert.False(t, d.Pending())

	quietFor(t, 100*time.Millisecond, func() bool { return settles.Load() > 0 }, "cancelled debounce must not settle")

	// Permanently disabled.
	d.Schedule()
	assert.False(t, d.Pending())
	quietFor(t, 80*time.Millisecond, func() bool { return settles.Load() > 0 }, "schedule after cancel is ignored")
}

func TestDebouncer_CancelWaitsForRunningSettle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	d := NewDebouncer(5*time.Millisecond, func() {
		close(started)
		<-release
		finished.Store(true)
	})

	d.Schedule()
	<-started

	cancelled := make(chan struct{})
	go func() {
		d.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while settle was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	<-cancelled
	assert.True(t, finished.Load())
}

func TestDebouncer_CancelIdle(t *testing.T) {
	d := NewDebouncer(time.Millisecond, func() { t.Fatal("unexpected settle") })
	d.Cancel()
	d.Cancel()
	assert.False(t, d.Pending())
}
