package core

import (
	"sync"
	"time"
)

// Clock abstracts time so leases and schedules can be tested deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func NewRealClock() Clock { return RealClock{} }

func (RealClock) Now() time.Time                         { return time.Now().UTC() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Sleep(d time.Duration)                  { time.Sleep(d) }

type timer struct {
	deadline time.Time
	ch       chan time.Time
}

// FakeClock only moves when Add is called.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After creates a timer that fires when fake time reaches now + d
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{
		deadline: c.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	c.timers = append(c.timers, t)
	return t.ch
}

func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Add advances fake time and fires timers whose deadlines have passed
func (c *FakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	var remaining []*timer
	for _, t := range c.timers {
		if !t.deadline.After(c.now) {
			t.ch <- c.now
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
}
