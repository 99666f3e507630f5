package listing

import (
	"sync"
	"time"
)

// Task is one scheduled run of a Debouncer.
type Task struct {
	d     *Debouncer
	gen   uint64
	timer stopper
	done  chan struct{}
}

// Cancel stops the task if it has not started. It reports whether the run was
// prevented.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.d.gen != t.gen || t.d.pending != t {
		return false
	}
	t.d.gen++
	t.d.pending = nil
	t.timer.Stop()
	close(t.done)
	return true
}

// Done is closed once the task has run or was cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

type stopper interface {
	Stop() bool
}

// Debouncer runs only the last of a burst of scheduled functions, once delay
// has passed without a new call.
type Debouncer struct {
	delay     time.Duration
	afterFunc func(time.Duration, func()) stopper

	mu      sync.Mutex
	gen     uint64
	pending *Task
}

// NewDebouncer returns a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay: delay,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule cancels any pending task and schedules fn.
func (d *Debouncer) Schedule(fn func()) *Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev := d.pending; prev != nil {
		prev.timer.Stop()
		close(prev.done)
	}
	d.gen++
	t := &Task{d: d, gen: d.gen, done: make(chan struct{})}
	d.pending = t
	t.timer = d.afterFunc(d.delay, func() { d.fire(t, fn) })
	return t
}

// fire runs fn unless t was superseded or cancelled after its timer expired.
func (d *Debouncer) fire(t *Task, fn func()) {
	d.mu.Lock()
	if d.gen != t.gen || d.pending != t {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()

	defer close(t.done)
	fn()
}

// Pending reports whether a task is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels the pending task, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	t := d.pending
	d.mu.Unlock()
	t.Cancel()
}
