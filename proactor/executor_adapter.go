package proactor

import "github.com/momentics/proactor/api"

// Submit implements api.Executor by enqueuing task as a one-shot work
// entry, run on the poll goroutine's next cycle (or by RunOne for a
// caller-driven schedule).
func (p *Proactor) Submit(task func()) error {
	p.work.AddWork(task, 0)
	p.WakeUp()
	return nil
}

// NumWorkers implements api.Executor. Submitted tasks run on exactly one
// goroutine, the poll loop; the proactor's other goroutine, the completion
// executor, runs only I/O completion callbacks. Neither is user-resizable:
// readiness dispatch is inherently single-threaded per PollSet.
func (p *Proactor) NumWorkers() int { return 1 }

// Resize implements api.Executor as a no-op: the proactor's concurrency
// model has no worker pool to resize.
func (p *Proactor) Resize(int) {}

var (
	_ api.Executor  = (*Proactor)(nil)
	_ api.Scheduler = (*Proactor)(nil)
)
