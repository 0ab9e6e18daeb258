package proactor

import (
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/momentics/proactor/internal/backoff"
	"github.com/momentics/proactor/internal/notify"
	"github.com/momentics/proactor/internal/safe"
)

// completionNotification is one already-decided I/O outcome waiting to be
// dispatched to its caller's callback off the poll thread.
type completionNotification struct {
	cb  Callback
	n   int
	err error
}

// completionExecutor is the dedicated goroutine that drains the completion
// queue and invokes each Handler's callback, decoupling callback execution
// from the poll thread. It polls the queue rather than blocking on it so its
// idle wait can follow the same adaptive backoff schedule as the poll loop.
type completionExecutor struct {
	q       *notify.Queue
	wakeCh  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	backoff *backoff.Controller
	log     zerolog.Logger
	running atomic.Bool
}

func newCompletionExecutor(log zerolog.Logger, maxBackoff time.Duration) *completionExecutor {
	return &completionExecutor{
		q:       notify.New(),
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		backoff: backoff.New(maxBackoff),
		log:     log,
	}
}

// start launches the executor's goroutine. Safe to call once.
func (c *completionExecutor) start() {
	if c.running.CompareAndSwap(false, true) {
		go c.run()
	}
}

// enqueue schedules cb for dispatch with the given outcome. Safe for
// concurrent callers (multiple producers, e.g. poll handlers firing back to
// back within one poll cycle).
func (c *completionExecutor) enqueue(cb Callback, n int, err error) {
	if cb == nil {
		return
	}
	c.q.Enqueue(completionNotification{cb: cb, n: n, err: err})
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

func (c *completionExecutor) run() {
	defer close(c.doneCh)
	for {
		if item, ok := c.q.TryDequeue(); ok {
			c.backoff.Reset()
			c.invoke(item.(completionNotification))
			continue
		}
		select {
		case <-c.stopCh:
			c.drain()
			return
		default:
		}
		c.backoff.SleepWake(c.stopCh, c.wakeCh)
	}
}

func (c *completionExecutor) drain() {
	for {
		item, ok := c.q.TryDequeue()
		if !ok {
			return
		}
		c.invoke(item.(completionNotification))
	}
}

func (c *completionExecutor) invoke(note completionNotification) {
	safe.Call(c.log, "completion", func() { note.cb(note.err, note.n) })
}

// stop signals the executor to drain and exit; it does not block.
func (c *completionExecutor) stop() {
	if c.running.CompareAndSwap(true, false) {
		close(c.stopCh)
	}
}

// wait blocks until the executor's goroutine has fully exited.
func (c *completionExecutor) wait() {
	<-c.doneCh
}
