package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual provides deterministic time control for tests. Timers fire
// synchronously from Advance, in deadline order, on the caller's goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	clock    *Manual
	id       uint64
	deadline time.Time
	fn       func()
}

// NewManual creates a manual clock starting at the current time.
func NewManual() *Manual {
	return NewManualAt(time.Now())
}

// NewManualAt creates a manual clock starting at the specified time.
func NewManualAt(t time.Time) *Manual {
	return &Manual{
		now:    t,
		timers: make(map[uint64]*manualTimer),
	}
}

// Now returns the current time according to the manual clock.
func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once virtual time has advanced by d.
func (c *Manual) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &manualTimer{
		clock:    c,
		id:       c.seq,
		deadline: c.now.Add(d),
		fn:       f,
	}
	c.timers[t.id] = t
	return t
}

// Advance moves the clock forward by d and runs every timer whose deadline
// has been reached. Timers scheduled by those callbacks run too if they
// fall inside the advanced window.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		delete(c.timers, next.id)
		c.now = next.deadline
		c.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *Manual) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// nextDueLocked returns the earliest timer due at or before target.
func (c *Manual) nextDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}
