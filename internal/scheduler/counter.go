// Package scheduler owns the tick clock that gates every capture and analysis.
package scheduler

import (
	"sync/atomic"
)

// Counter is the scheduler state. Ticks are 1-indexed from process start and only
// grow; every stage evaluated in a sweep reads the same tick value.
type Counter struct {
	tick atomic.Int64
}

// NewCounter starts the counter so that the next Advance returns start+1.
func NewCounter(start int64) *Counter {
	c := &Counter{}
	c.tick.Store(start)
	return c
}

// Advance increments the counter and returns the new tick.
func (c *Counter) Advance() int64 {
	return c.tick.Add(1)
}

// Current returns the last tick handed out.
func (c *Counter) Current() int64 {
	return c.tick.Load()
}

// IsDue reports whether an entity with the given interval runs on tick.
// A non-positive interval is rejected at configuration time and never due here.
func IsDue(tick int64, interval int) bool {
	if interval <= 0 {
		return false
	}
	return tick%int64(interval) == 0
}
