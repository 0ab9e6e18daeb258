package proactor

import (
	"container/list"
	"time"

	"github.com/momentics/proactor/api"
)

// workCancel adapts a single workSchedule entry to api.Cancelable.
type workCancel struct {
	sched *workSchedule
	el    *list.Element
	done  chan struct{}
	err   error
}

func (c *workCancel) Cancel() error {
	c.sched.removeElement(c.el)
	return nil
}

func (c *workCancel) Done() <-chan struct{} { return c.done }

func (c *workCancel) Err() error { return c.err }

// Schedule implements api.Scheduler by delegating to the work schedule:
// fn runs once, off the poll thread's own goroutine, after delayNanos have
// elapsed, exactly like a zero-expiration AddWork entry timed further out.
func (p *Proactor) Schedule(delayNanos int64, fn func()) (api.Cancelable, error) {
	c := &workCancel{sched: p.work, done: make(chan struct{})}
	wrapped := func() {
		fn()
		close(c.done)
	}
	c.el = p.work.addWorkElem(wrapped, time.Duration(delayNanos), false)
	p.WakeUp()
	return c, nil
}

// Cancel implements api.Scheduler.
func (p *Proactor) Cancel(c api.Cancelable) error { return c.Cancel() }

// monoEpoch anchors Now's readings to the process's monotonic clock.
var monoEpoch = time.Now()

// Now implements api.Scheduler with a monotonic clock reading (nanoseconds
// since package initialization), matching the work schedule's own deadline
// clock.
func (p *Proactor) Now() int64 { return int64(time.Since(monoEpoch)) }
