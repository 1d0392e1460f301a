// Package schedule provides delayed tasks with cancellable handles. The
// coordinator uses it for every deferred re-fetch and for expiring the
// manual-sync session, so tests can drive time with [Manual] instead of
// sleeping.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// Handle cancels a scheduled task.
type Handle interface {
	// Stop prevents the task from running. It reports whether the call
	// stopped the task (false if it already ran or was stopped).
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Handle
}

// --- Wall clock --------------------------------------------------------------

// Clock schedules on the wall clock via [time.AfterFunc]. Tasks run on their
// own goroutine.
type Clock struct{}

// AfterFunc implements [Scheduler].
func (Clock) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

// --- Virtual time ------------------------------------------------------------

// Manual is a virtual-time [Scheduler]. Tasks only run when [Manual.Advance]
// moves time past their deadline, on the caller's goroutine, in deadline
// order (ties in scheduling order).
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	m       *Manual
	due     time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewManual returns a Manual scheduler at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

// AfterFunc implements [Scheduler].
func (m *Manual) AfterFunc(d time.Duration, f func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, due: m.now + d, seq: m.seq, f: f}
	m.tasks = append(m.tasks, t)
	return t
}

// Stop implements [Handle].
func (t *manualTask) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves virtual time forward by d and runs every task that falls due,
// including tasks scheduled by tasks that ran during this call.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.f()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// nextDue pops the earliest live task due at or before target and moves the
// clock to its deadline.
func (m *Manual) nextDue(target time.Duration) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.tasks = live
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due != m.tasks[j].due {
			return m.tasks[i].due < m.tasks[j].due
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})

	if len(m.tasks) == 0 || m.tasks[0].due > target {
		return nil
	}
	t := m.tasks[0]
	t.fired = true
	m.now = t.due
	return t
}

// Pending returns the number of tasks that have neither run nor been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Now returns the elapsed virtual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}
