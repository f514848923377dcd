package schedule

import (
	"sort"
	"sync"
	"time"
)

// Fake is a virtual-time Scheduler for tests. Tasks fire only when Advance
// moves the clock past their due time, in due order.
type Fake struct {
	mu   sync.Mutex
	now  time.Time
	seq  uint64
	jobs []*fakeTask
}

// NewFake creates a fake scheduler starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// After implements Scheduler.
func (f *Fake) After(d time.Duration, fn func()) Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d < 0 {
		d = 0
	}
	f.seq++
	t := &fakeTask{owner: f, due: f.now.Add(d), seq: f.seq, fn: fn}
	f.jobs = append(f.jobs, t)
	return t
}

// Now implements Scheduler.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward, firing every due task in order.
// Callbacks run outside the scheduler lock, so they may schedule new tasks;
// newly scheduled tasks that fall within the window fire too.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	deadline := f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.popDue(deadline)
		if t == nil {
			break
		}
		t.fn()
	}

	f.mu.Lock()
	if deadline.After(f.now) {
		f.now = deadline
	}
	f.mu.Unlock()
}

// Pending reports how many tasks are waiting to fire.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *Fake) popDue(deadline time.Time) *fakeTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	sort.SliceStable(f.jobs, func(i, j int) bool {
		if f.jobs[i].due.Equal(f.jobs[j].due) {
			return f.jobs[i].seq < f.jobs[j].seq
		}
		return f.jobs[i].due.Before(f.jobs[j].due)
	})
	for i, t := range f.jobs {
		if t.due.After(deadline) {
			break
		}
		f.jobs = append(f.jobs[:i], f.jobs[i+1:]...)
		if t.due.After(f.now) {
			f.now = t.due
		}
		return t
	}
	return nil
}

func (f *Fake) remove(target *fakeTask) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.jobs {
		if t == target {
			f.jobs = append(f.jobs[:i], f.jobs[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTask struct {
	owner *Fake
	due   time.Time
	seq   uint64
	fn    func()
}

func (t *fakeTask) Cancel() bool {
	return t.owner.remove(t)
}
