package proactor

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/proactor/internal/safe"
)

// PermanentCompletionHandler marks a work entry for indefinite, per-cycle
// re-invocation instead of a bounded deadline.
const PermanentCompletionHandler time.Duration = -1

type workEntry struct {
	fn        func()
	permanent bool
	deadline  time.Time
	done      bool
	ran       bool
}

// workSchedule is the cooperative executor for time-bounded and permanent
// callbacks interleaved with the poll loop, in insertion order.
type workSchedule struct {
	mu       sync.Mutex
	items    *list.List // of *workEntry
	now      func() time.Time
	log      zerolog.Logger
	notifyCh chan struct{}
}

func newWorkSchedule(log zerolog.Logger) *workSchedule {
	return &workSchedule{
		items:    list.New(),
		now:      time.Now,
		log:      log,
		notifyCh: make(chan struct{}, 1),
	}
}

func (w *workSchedule) signal() {
	select {
	case w.notifyCh <- struct{}{}:
	default:
	}
}

// AddWork schedules fn. expiration == PermanentCompletionHandler marks a
// permanent entry, re-invoked every cycle until explicitly removed; any
// other value is a duration from now after which the entry expires (0
// means "run once on the next cycle, then remove").
func (w *workSchedule) AddWork(fn func(), expiration time.Duration) {
	w.addWork(fn, expiration, false)
}

// AddWorkFront is AddWork with front-of-queue insertion.
func (w *workSchedule) AddWorkFront(fn func(), expiration time.Duration) {
	w.addWork(fn, expiration, true)
}

func (w *workSchedule) addWork(fn func(), expiration time.Duration, front bool) {
	w.addWorkElem(fn, expiration, front)
}

// addWorkElem is addWork, additionally returning the list element backing
// the new entry so a caller (e.g. the Scheduler adapter) can later cancel
// this specific entry via removeElement.
func (w *workSchedule) addWorkElem(fn func(), expiration time.Duration, front bool) *list.Element {
	e := &workEntry{fn: fn}
	if expiration == PermanentCompletionHandler {
		e.permanent = true
	} else {
		e.deadline = w.now().Add(expiration)
	}
	w.mu.Lock()
	var el *list.Element
	if front {
		el = w.items.PushFront(e)
	} else {
		el = w.items.PushBack(e)
	}
	w.mu.Unlock()
	w.signal()
	return el
}

// removeElement cancels a single entry previously returned by addWorkElem,
// if it has not already run and been removed.
func (w *workSchedule) removeElement(el *list.Element) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry := el.Value.(*workEntry)
	if entry.done {
		return false
	}
	entry.done = true
	w.items.Remove(el)
	return true
}

// RemoveWork drops every scheduled and permanent entry.
func (w *workSchedule) RemoveWork() {
	w.mu.Lock()
	w.items.Init()
	w.mu.Unlock()
}

// ScheduledWork returns the number of non-permanent entries.
func (w *workSchedule) ScheduledWork() int { return w.count(false) }

// PermanentWork returns the number of permanent entries.
func (w *workSchedule) PermanentWork() int { return w.count(true) }

func (w *workSchedule) count(permanent bool) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for e := w.items.Front(); e != nil; e = e.Next() {
		if e.Value.(*workEntry).permanent == permanent {
			n++
		}
	}
	return n
}

// RemoveScheduledWork drops the first n non-permanent entries from the
// front of the schedule, or all of them if n < 0, returning the count
// removed.
func (w *workSchedule) RemoveScheduledWork(n int) int { return w.removeMatching(n, false) }

// RemovePermanentWork drops the first n permanent entries, or all if n < 0.
func (w *workSchedule) RemovePermanentWork(n int) int { return w.removeMatching(n, true) }

func (w *workSchedule) removeMatching(n int, permanent bool) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	e := w.items.Front()
	for e != nil && (n < 0 || removed < n) {
		next := e.Next()
		if e.Value.(*workEntry).permanent == permanent {
			w.items.Remove(e)
			removed++
		}
		e = next
	}
	return removed
}

// doWork iterates entries in insertion order. If expiredOnly, only deadline
// entries whose deadline has already passed are invoked, then removed;
// otherwise every permanent entry and every deadline entry whose deadline
// has not yet passed is invoked, with a deadline entry removed right after
// invocation if its deadline has now passed. A deadline entry whose deadline
// had already passed before this cycle started is invoked one final time and
// removed if it has never run, and removed without invocation otherwise. If
// handleOne, doWork stops after the first invocation.
func (w *workSchedule) doWork(handleOne, expiredOnly bool) (invoked int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.items.Front()
	for e != nil {
		next := e.Next()
		entry := e.Value.(*workEntry)
		if entry.done {
			e = next
			continue
		}
		switch {
		case entry.permanent:
			if !expiredOnly {
				w.runLocked(entry)
				invoked++
				if handleOne {
					return invoked
				}
			}
		case expiredOnly:
			if w.now().After(entry.deadline) {
				w.runLocked(entry)
				if !entry.done {
					entry.done = true
					w.items.Remove(e)
				}
				invoked++
				if handleOne {
					return invoked
				}
			}
		default:
			if !entry.ran || !w.now().After(entry.deadline) {
				w.runLocked(entry)
				entry.ran = true
				invoked++
				if !entry.done && w.now().After(entry.deadline) {
					entry.done = true
					w.items.Remove(e)
				}
				if handleOne {
					return invoked
				}
			} else {
				entry.done = true
				w.items.Remove(e)
			}
		}
		e = next
	}
	return invoked
}

// runLocked invokes entry.fn with the schedule's lock released, so the
// callback may itself call AddWork/RemoveWork without deadlocking.
func (w *workSchedule) runLocked(entry *workEntry) {
	w.mu.Unlock()
	safe.Call(w.log, "scheduled-work", entry.fn)
	w.mu.Lock()
}

// RunOne blocks until at least one entry is ready, invokes it, and returns 1
// on success or 0 if stop was signaled before anything could be invoked.
func (w *workSchedule) RunOne(stop <-chan struct{}) int {
	for {
		w.mu.Lock()
		empty := w.items.Len() == 0
		w.mu.Unlock()
		if empty {
			select {
			case <-w.notifyCh:
			case <-stop:
				return 0
			}
			continue
		}
		if n := w.doWork(true, false); n > 0 {
			return 1
		}
		// Every entry inspected this pass was an already-expired deadline
		// entry that had run in an earlier cycle, removed without
		// invocation; loop and wait again.
	}
}
