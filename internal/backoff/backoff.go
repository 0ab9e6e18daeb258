// Package backoff implements the adaptive idle-sleep schedule shared by the
// poll/dispatch loop and the completion executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The schedule doubles from 1ms toward a configured cap and resets to zero
// on any productive cycle, matching the adaptiveBackoff shape used by
// internal/concurrency.EventLoop in the source repository.
package backoff

import (
	"time"

	"go.uber.org/atomic"
)

const minStep = time.Millisecond

// Controller tracks the current sleep interval for one idle producer/consumer
// loop. Construct it with New: the zero value has a zero cap, so its
// interval stays at zero and it never sleeps.
type Controller struct {
	cap     time.Duration
	current atomic.Duration
}

// New creates a Controller capped at max. A non-positive max is replaced by
// the default cap of 250ms, matching the proactor's documented default
// timeout.
func New(max time.Duration) *Controller {
	if max <= 0 {
		max = 250 * time.Millisecond
	}
	return &Controller{cap: max}
}

// Reset zeroes the backoff, called after any productive cycle.
func (c *Controller) Reset() {
	c.current.Store(0)
}

// Sleep blocks for the current interval, then grows it toward the cap.
// It returns early if done is closed.
func (c *Controller) Sleep(done <-chan struct{}) {
	cur := c.current.Load()
	if cur > 0 {
		t := time.NewTimer(cur)
		select {
		case <-t.C:
		case <-done:
			t.Stop()
		}
	}
	next := cur * 2
	if next < minStep {
		next = minStep
	}
	if next > c.cap {
		next = c.cap
	}
	c.current.Store(next)
}

// SleepWake behaves like Sleep but also returns early when wake is signaled,
// letting a producer cut an idle wait short without closing done.
func (c *Controller) SleepWake(done, wake <-chan struct{}) {
	cur := c.current.Load()
	if cur > 0 {
		t := time.NewTimer(cur)
		select {
		case <-t.C:
		case <-done:
			t.Stop()
		case <-wake:
			t.Stop()
		}
	}
	next := cur * 2
	if next < minStep {
		next = minStep
	}
	if next > c.cap {
		next = c.cap
	}
	c.current.Store(next)
}

// Current returns the interval that the next Sleep call would use.
func (c *Controller) Current() time.Duration {
	return c.current.Load()
}

// Cap returns the configured maximum interval.
func (c *Controller) Cap() time.Duration {
	return c.cap
}
