package engine

import (
	"sync"
	"time"
)

// Clock supplies timestamps for history entries.
// Implemented by WallClock (production) and testutil.StepClock (tests).
type Clock interface {
	Now() time.Time
}

// WallClock is a UTC wall clock that never goes backwards.
//
// History logs require non-decreasing timestamps. The system clock can step
// backwards (NTP adjustment), so WallClock holds the last value it handed out
// and returns that instead of an earlier reading.
//
// Thread-safety: WallClock is safe for concurrent use.
type WallClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewWallClock creates a clock reading the system time.
func NewWallClock() *WallClock {
	return &WallClock{now: time.Now}
}

// Now returns the current UTC time, clamped to the last value returned.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if t.Before(c.last) {
		return c.last
	}
	c.last = t
	return t
}
