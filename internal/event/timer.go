// ABOUTME: One-shot timer whose callback runs on the event loop
// ABOUTME: Used for periodic work such as reaping closed connections
package event

import "time"

// Timer fires a callback on its loop after a delay.
// All methods must be called from the loop.
type Timer struct {
	loop    *Loop
	fn      func()
	timer   *time.Timer
	gen     uint64
	pending bool
}

// NewTimer creates an idle timer
func NewTimer(loop *Loop, fn func()) *Timer {
	return &Timer{loop: loop, fn: fn}
}

// Schedule arms the timer, replacing any earlier deadline
func (t *Timer) Schedule(d time.Duration) {
	t.Cancel()

	gen := t.gen
	t.pending = true
	t.timer = time.AfterFunc(d, func() {
		t.loop.Post(func() {
			if t.gen != gen || !t.pending {
				return
			}
			t.pending = false
			t.fn()
		})
	})
}

// Cancel disarms the timer. A firing already queued on the loop is dropped.
func (t *Timer) Cancel() {
	t.gen++
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// IsPending reports whether the timer is armed
func (t *Timer) IsPending() bool {
	return t.pending
}
