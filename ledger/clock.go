package ledger

import (
	"sync"
	"time"
)

// Clock supplies server timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// ServerClock returns UTC timestamps that strictly increase across calls,
// even if the wall clock stalls or steps backwards.
type ServerClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewServerClock() *ServerClock {
	return &ServerClock{now: time.Now}
}

func (c *ServerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
