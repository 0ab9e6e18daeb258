// Package notify implements the MPSC notification queue consumed by the
// proactor's I/O completion executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Backed by github.com/eapache/queue, a growable ring-buffer deque; wrapped
// with a mutex and condition variable to provide the blocking Dequeue and
// WakeUpAll semantics the proactor contract requires. Multiple producers
// (any caller goroutine enqueuing a completion) and a single consumer (the
// completion executor's own goroutine) are supported.
package notify

import (
	"sync"

	"github.com/eapache/queue"
)

// Queue is a thread-safe MPSC FIFO of arbitrary payloads.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	q       *queue.Queue
	closed  bool
	wakeGen uint64
}

// New creates an empty Queue.
func New() *Queue {
	nq := &Queue{q: queue.New()}
	nq.cond = sync.NewCond(&nq.mu)
	return nq
}

// Enqueue appends an item and wakes one blocked consumer, if any.
func (n *Queue) Enqueue(item any) {
	n.mu.Lock()
	n.q.Add(item)
	n.cond.Signal()
	n.mu.Unlock()
}

// Dequeue removes and returns the head item. It blocks until an item is
// available, the queue is closed, or WakeUpAll is called with the queue
// still empty (in which case ok is false).
func (n *Queue) Dequeue() (item any, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	gen := n.wakeGen
	for n.q.Length() == 0 && !n.closed && gen == n.wakeGen {
		n.cond.Wait()
	}
	if n.q.Length() == 0 {
		return nil, false
	}
	return n.q.Remove(), true
}

// TryDequeue removes and returns the head item without blocking.
func (n *Queue) TryDequeue() (item any, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.q.Length() == 0 {
		return nil, false
	}
	return n.q.Remove(), true
}

// WakeUpAll unblocks every goroutine currently parked in Dequeue, without
// closing the queue: a subsequent Dequeue call blocks again if still empty.
func (n *Queue) WakeUpAll() {
	n.mu.Lock()
	n.wakeGen++
	n.cond.Broadcast()
	n.mu.Unlock()
}

// Close marks the queue closed and wakes every blocked consumer for good;
// Dequeue returns ok=false immediately from then on once drained.
func (n *Queue) Close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
}

// Empty reports whether the queue currently holds no items.
func (n *Queue) Empty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.q.Length() == 0
}

// Len returns the current number of queued items.
func (n *Queue) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.q.Length()
}
