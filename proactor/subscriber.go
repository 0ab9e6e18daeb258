package proactor

import (
	"sync"

	"github.com/eapache/queue"
)

// subscriberMap is a per-direction FIFO of pending Handlers keyed by file
// descriptor, mirroring the source header's
// SubscriberMap = unordered_map<socket_t, deque<unique_ptr<Handler>>>. Each
// direction (read, write) owns its own subscriberMap and its own mutex,
// matching the source's separate _readMutex/_writeMutex.
type subscriberMap struct {
	mu sync.Mutex
	m  map[uintptr]*queue.Queue
}

func newSubscriberMap() *subscriberMap {
	return &subscriberMap{m: make(map[uintptr]*queue.Queue)}
}

// append enqueues h as the new tail of fd's queue, creating the queue if
// this is fd's first pending handler in this direction.
func (s *subscriberMap) append(fd uintptr, h *Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.m[fd]
	if !ok {
		q = queue.New()
		s.m[fd] = q
	}
	q.Add(h)
}

// peekHead returns fd's head-of-queue Handler without removing it, or nil
// if fd has no pending handlers in this direction.
func (s *subscriberMap) peekHead(fd uintptr) *Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.m[fd]
	if !ok || q.Length() == 0 {
		return nil
	}
	return q.Peek().(*Handler)
}

// popHead removes fd's head-of-queue Handler, if any. The map entry is
// retained even once its queue empties: removal of a socket's entry is
// explicit, via remove/drain, not an automatic side effect of draining.
func (s *subscriberMap) popHead(fd uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.m[fd]
	if !ok || q.Length() == 0 {
		return
	}
	q.Remove()
}

// has reports whether fd has an entry (possibly empty) in this direction.
// The entry persists across I/O completions once created, until an
// explicit remove/drain or proactor shutdown.
func (s *subscriberMap) has(fd uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[fd]
	return ok
}

// pending reports whether fd currently has at least one queued handler in
// this direction, independent of whether its map entry exists.
func (s *subscriberMap) pending(fd uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.m[fd]
	return ok && q.Length() > 0
}

// remove drops fd's queue entirely, discarding any still-pending handlers.
func (s *subscriberMap) remove(fd uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, fd)
}

// drain pops and returns every handler still queued for fd, in order, and
// drops fd's queue entry. Used when flushing pending handlers at shutdown.
func (s *subscriberMap) drain(fd uintptr) []*Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.m[fd]
	if !ok {
		return nil
	}
	out := make([]*Handler, 0, q.Length())
	for q.Length() > 0 {
		out = append(out, q.Remove().(*Handler))
	}
	delete(s.m, fd)
	return out
}

// fds returns a snapshot of every registered file descriptor.
func (s *subscriberMap) fds() []uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uintptr, 0, len(s.m))
	for fd := range s.m {
		out = append(out, fd)
	}
	return out
}
