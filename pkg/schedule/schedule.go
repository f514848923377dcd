// Package schedule provides cancellable delayed tasks behind an interface so
// timer-driven logic can run against virtual time in tests.
package schedule

import (
	"sync"
	"time"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Cancel stops the task; it reports whether the callback was prevented from firing.
	Cancel() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	// After runs fn once after d elapses.
	After(d time.Duration, fn func()) Task
	// Now returns the scheduler's current time.
	Now() time.Time
}

// New returns a wall-clock scheduler backed by time.AfterFunc.
func New() Scheduler {
	return &realScheduler{}
}

type realScheduler struct{}

func (*realScheduler) After(d time.Duration, fn func()) Task {
	rt := &realTask{}
	rt.timer = time.AfterFunc(d, func() {
		rt.mu.Lock()
		if rt.done {
			rt.mu.Unlock()
			return
		}
		rt.done = true
		rt.mu.Unlock()
		fn()
	})
	return rt
}

func (*realScheduler) Now() time.Time {
	return time.Now()
}

type realTask struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

func (t *realTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return t.timer.Stop()
}
