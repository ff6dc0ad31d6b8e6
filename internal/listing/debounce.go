package listing

import (
	"sync"
	"time"
)

// Debouncer runs the most recently armed task once the input has been quiet
// for the configured delay. Re-arming cancels the pending task.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	stopped bool
	running sync.WaitGroup
}

// NewDebouncer constructs a Debouncer. A non-positive delay runs tasks
// synchronously from Trigger.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger arms fn, cancelling any pending task.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.delay <= 0 {
		d.mu.Unlock()
		fn()
		return
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A timer that already fired cannot be stopped; seq tells us it was
		// superseded.
		current := seq == d.seq && !d.stopped
		if current {
			d.timer = nil
			d.running.Add(1)
		}
		d.mu.Unlock()
		if current {
			defer d.running.Done()
			fn()
		}
	})
	d.mu.Unlock()
}

// Cancel drops the pending task, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a task is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels the pending task, ignores later triggers and waits for a task
// that had already started. It must not be called from inside a task.
func (d *Debouncer) Stop() {
	d.Cancel()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.running.Wait()
}
