package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock advances only when Advance is called. AfterFunc callbacks run
// synchronously inside Advance in deadline order; do not call Advance from
// a callback.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	current time.Time
	waiters []*fakeTimer
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	delay    time.Duration
	fn       func()
	done     bool
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.current.Add(d), delay: d, fn: f}
	c.waiters = append(c.waiters, t)
	c.changed.Broadcast()
	return t
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	c.removeLocked(t)
	c.changed.Broadcast()
	return true
}

// Advance moves time forward by d and fires every timer that became due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	var due []*fakeTimer
	for _, t := range c.waiters {
		if !t.done && !t.deadline.After(now) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.done = true
		c.removeLocked(t)
	}
	c.changed.Broadcast()
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// Pending returns the requested delays of timers that have not fired.
func (c *FakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.waiters))
	for _, t := range c.waiters {
		out = append(out, t.delay)
	}
	return out
}

// WaitForTimers blocks until at least n timers are pending or timeout
// elapses (wall time). It reports whether the count was reached.
func (c *FakeClock) WaitForTimers(n int, timeout time.Duration) bool {
	expired := false
	stop := time.AfterFunc(timeout, func() {
		c.mu.Lock()
		expired = true
		c.changed.Broadcast()
		c.mu.Unlock()
	})
	defer stop.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n && !expired {
		c.changed.Wait()
	}
	return len(c.waiters) >= n
}

func (c *FakeClock) removeLocked(t *fakeTimer) {
	for i, w := range c.waiters {
		if w == t {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

var _ Clock = (*FakeClock)(nil)
