// Package ratelimit throttles repetitive log lines (key bounce, send failures)
// while still counting every occurrence.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Counter counts occurrences and allows a log line at most once per interval.
// Time is supplied by the caller so sample timestamps, not wall time, drive
// the throttle. It is safe for concurrent use.
type Counter struct {
	interval   time.Duration
	lastLog    atomic.Int64
	suppressed atomic.Uint64
	total      atomic.Uint64
}

// NewCounter returns a Counter. A zero or negative interval disables throttling.
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval}
}

// Inc records one occurrence at now. It returns the running total, the number
// of occurrences suppressed since the last allowed line, and whether the
// caller may log this one.
func (c *Counter) Inc(now time.Time) (total uint64, suppressed uint64, allow bool) {
	if c == nil {
		return 0, 0, false
	}
	total = c.total.Add(1)
	if c.interval <= 0 {
		return total, 0, true
	}
	ts := now.UnixNano()
	last := c.lastLog.Load()
	if last != 0 && ts-last < c.interval.Nanoseconds() {
		c.suppressed.Add(1)
		return total, 0, false
	}
	if !c.lastLog.CompareAndSwap(last, ts) {
		c.suppressed.Add(1)
		return total, 0, false
	}
	return total, c.suppressed.Swap(0), true
}

// Total returns the number of occurrences recorded so far.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}
