package proactor

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/proactor/api"
	"github.com/momentics/proactor/internal/backoff"
)

// Mode flags re-exported for facade callers.
const (
	PollRead  = api.PollRead
	PollWrite = api.PollWrite
	PollError = api.PollError
)

type proactorState int32

const (
	stateIdle proactorState = iota
	stateRunning
	stateStopping
	stateStopped
)

// Proactor implements the socket-proactor pattern: callers issue add*
// operations against non-blocking sockets and later receive a completion
// callback dispatched off the poll thread, on a dedicated completion
// executor goroutine. A Proactor is safe for concurrent use by multiple
// goroutines issuing add*/Stop/WakeUp calls while Run services events.
type Proactor struct {
	pollSet    api.PollSet
	readMap    *subscriberMap
	writeMap   *subscriberMap
	work       *workSchedule
	completion *completionExecutor
	backoff    *backoff.Controller
	metrics    *Metrics
	log        zerolog.Logger

	timeout atomic.Duration
	state   atomic.Int32

	socketsMu      sync.Mutex
	sockets        map[uintptr]api.Socket
	pollRegistered map[uintptr]bool

	stopCh   chan struct{}
	wakeCh   chan struct{}
	runDone  chan struct{}
	eventBuf []api.Event

	startOnce sync.Once
	grp       *errgroup.Group
}

// New constructs a Proactor using cfg.Timeout (defaulting to 250ms).
func New(pollSet api.PollSet, cfg Config) *Proactor {
	return NewWithTimeout(pollSet, cfg.Timeout, cfg)
}

// NewWithTimeout constructs a Proactor with an explicit poll timeout,
// overriding cfg.Timeout.
func NewWithTimeout(pollSet api.PollSet, timeout time.Duration, cfg Config) *Proactor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = timeout
	}
	log := cfg.Logger

	p := &Proactor{
		pollSet:        pollSet,
		readMap:        newSubscriberMap(),
		writeMap:       newSubscriberMap(),
		work:           newWorkSchedule(log),
		backoff:        backoff.New(maxBackoff),
		metrics:        newMetrics(),
		log:            log,
		sockets:        make(map[uintptr]api.Socket),
		pollRegistered: make(map[uintptr]bool),
		stopCh:         make(chan struct{}),
		wakeCh:         make(chan struct{}, 1),
		runDone:        make(chan struct{}),
		eventBuf:       make([]api.Event, 128),
	}
	p.timeout.Store(timeout)
	p.completion = newCompletionExecutor(log, maxBackoff)
	p.completion.start()
	if cfg.WorkerEnabled {
		p.Start()
	}
	return p
}

// SetTimeout changes the poll timeout used by subsequent Poll/Run
// iterations.
func (p *Proactor) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultTimeout
	}
	p.timeout.Store(d)
}

// GetTimeout returns the current poll timeout.
func (p *Proactor) GetTimeout() time.Duration {
	return p.timeout.Load()
}

// Metrics returns a snapshot of this proactor's counters.
func (p *Proactor) Metrics() map[string]int64 { return p.metrics.Snapshot() }

func (p *Proactor) trackSocket(sock api.Socket) {
	p.socketsMu.Lock()
	p.sockets[sock.Fd()] = sock
	p.socketsMu.Unlock()
}

func (p *Proactor) lookupSocket(fd uintptr) api.Socket {
	p.socketsMu.Lock()
	defer p.socketsMu.Unlock()
	return p.sockets[fd]
}

// Has reports whether socket has a subscriber-map entry in either
// direction. The entry is created on first registration and, per the
// subscriber-map contract, survives its queue draining empty — only an
// explicit RemoveSocket call or proactor shutdown drops it, so Has does
// not by itself indicate a request is currently queued.
func (p *Proactor) Has(sock api.Socket) bool {
	fd := sock.Fd()
	return p.readMap.has(fd) || p.writeMap.has(fd)
}

// AddSocket registers socket in the PollSet for mode without queuing an
// I/O intent. Readiness on a socket with no queued Handler is counted in
// Poll's outHandled but produces no completion; no callback or other
// notification reaches the caller for it.
func (p *Proactor) AddSocket(sock api.Socket, mode api.Mode) error {
	p.trackSocket(sock)
	err := p.registerInterest(sock.Fd(), mode)
	p.WakeUp()
	return err
}

// registerInterest adds or updates fd's PollSet registration to the union
// of its current per-direction pending interests and mode. Call after
// updating readMap/writeMap so pending() reflects the new registration.
// Whether this is the fd's first PollSet registration is tracked
// separately from the subscriber-map entries, since those persist across
// queues draining while the PollSet registration does not.
func (p *Proactor) registerInterest(fd uintptr, mode api.Mode) error {
	want := mode
	if p.readMap.pending(fd) {
		want |= api.PollRead
	}
	if p.writeMap.pending(fd) {
		want |= api.PollWrite
	}
	p.socketsMu.Lock()
	existing := p.pollRegistered[fd]
	p.pollRegistered[fd] = true
	p.socketsMu.Unlock()
	if existing {
		return p.pollSet.Update(fd, want)
	}
	return p.pollSet.Add(fd, want)
}

// deregisterIfIdle shrinks or drops fd's PollSet registration after a
// handler has been popped, so a socket with no pending Handler in either
// direction stops being reported ready (level-triggered polling would
// otherwise keep reporting it every cycle with nothing to service). This
// only affects the PollSet registration; the subscriber-map entries
// themselves are untouched, per the subscriber-map contract.
func (p *Proactor) deregisterIfIdle(fd uintptr) {
	readPending := p.readMap.pending(fd)
	writePending := p.writeMap.pending(fd)
	if readPending || writePending {
		want := api.Mode(0)
		if readPending {
			want |= api.PollRead
		}
		if writePending {
			want |= api.PollWrite
		}
		if err := p.pollSet.Update(fd, want); err != nil {
			p.log.Error().Err(err).Uint64("fd", uint64(fd)).Msg("shrink interest failed")
		}
		return
	}
	p.socketsMu.Lock()
	delete(p.pollRegistered, fd)
	p.socketsMu.Unlock()
	if err := p.pollSet.Remove(fd); err != nil {
		p.log.Error().Err(err).Uint64("fd", uint64(fd)).Msg("deregister failed")
	}
}

// RemoveSocket explicitly drops sock's subscriber-map entries in both
// directions, its PollSet registration if still present, and its tracked
// lookup entry. This is the "caller removes the socket" path the
// subscriber-map contract reserves as the alternative to proactor
// shutdown for dropping a persisted entry; any handlers still queued for
// sock are discarded without a completion.
func (p *Proactor) RemoveSocket(sock api.Socket) {
	fd := sock.Fd()
	p.readMap.remove(fd)
	p.writeMap.remove(fd)
	p.socketsMu.Lock()
	registered := p.pollRegistered[fd]
	delete(p.pollRegistered, fd)
	delete(p.sockets, fd)
	p.socketsMu.Unlock()
	if registered {
		if err := p.pollSet.Remove(fd); err != nil {
			p.log.Error().Err(err).Uint64("fd", uint64(fd)).Msg("remove socket failed")
		}
	}
}

// AddReceive queues a stream receive into *buf, invoking cb on completion.
func (p *Proactor) AddReceive(sock api.Socket, buf *[]byte, cb Callback) {
	p.addRecv(sock, buf, nil, cb)
}

// AddReceiveFrom queues a datagram receive into *buf, storing the sender's
// address into *addr and invoking cb on completion. addr may be nil when
// the caller does not need the sender's address.
func (p *Proactor) AddReceiveFrom(sock api.Socket, buf *[]byte, addr *net.Addr, cb Callback) {
	if addr == nil {
		addr = new(net.Addr)
	}
	p.addRecv(sock, buf, addr, cb)
}

func (p *Proactor) addRecv(sock api.Socket, buf *[]byte, addr *net.Addr, cb Callback) {
	p.trackSocket(sock)
	fd := sock.Fd()
	h := &Handler{sock: sock, recvBuf: buf, recvAddr: addr, onCompletion: cb}
	p.readMap.append(fd, h)
	if err := p.registerInterest(fd, api.PollRead); err != nil {
		p.log.Error().Err(err).Uint64("fd", uint64(fd)).Msg("register read interest failed")
	}
	p.WakeUp()
}

// AddSend queues a stream send of buf, which the caller must keep valid
// until cb fires.
func (p *Proactor) AddSend(sock api.Socket, buf []byte, cb Callback) {
	p.addSend(sock, borrowedBuf(buf), AddrSlot{}, false, cb)
}

// AddSendOwned queues a stream send of buf, which the Handler owns: the
// caller may discard its own reference immediately.
func (p *Proactor) AddSendOwned(sock api.Socket, buf []byte, cb Callback) {
	p.addSend(sock, ownedBuf(buf), AddrSlot{}, false, cb)
}

// AddSendTo queues a datagram send of buf to addr, both caller-owned.
func (p *Proactor) AddSendTo(sock api.Socket, buf []byte, addr net.Addr, cb Callback) {
	p.addSend(sock, borrowedBuf(buf), borrowedAddr(addr), true, cb)
}

// AddSendToOwned queues a datagram send of buf to addr, both owned by the
// Handler.
func (p *Proactor) AddSendToOwned(sock api.Socket, buf []byte, addr net.Addr, cb Callback) {
	p.addSend(sock, ownedBuf(buf), ownedAddr(addr), true, cb)
}

func (p *Proactor) addSend(sock api.Socket, buf BufSlot, addr AddrSlot, hasAddr bool, cb Callback) {
	p.trackSocket(sock)
	fd := sock.Fd()
	h := &Handler{sock: sock, sendBuf: buf, sendAddr: addr, hasAddr: hasAddr, onCompletion: cb}
	p.writeMap.append(fd, h)
	if err := p.registerInterest(fd, api.PollWrite); err != nil {
		p.log.Error().Err(err).Uint64("fd", uint64(fd)).Msg("register write interest failed")
	}
	p.WakeUp()
}

// AddWork delegates to the work schedule.
func (p *Proactor) AddWork(fn func(), expiration time.Duration) { p.work.AddWork(fn, expiration) }

// AddWorkFront delegates to the work schedule.
func (p *Proactor) AddWorkFront(fn func(), expiration time.Duration) {
	p.work.AddWorkFront(fn, expiration)
}

// RemoveWork delegates to the work schedule.
func (p *Proactor) RemoveWork() { p.work.RemoveWork() }

// RemoveScheduledWork delegates to the work schedule.
func (p *Proactor) RemoveScheduledWork(n int) int { return p.work.RemoveScheduledWork(n) }

// RemovePermanentWork delegates to the work schedule.
func (p *Proactor) RemovePermanentWork(n int) int { return p.work.RemovePermanentWork(n) }

// ScheduledWork delegates to the work schedule.
func (p *Proactor) ScheduledWork() int { return p.work.ScheduledWork() }

// PermanentWork delegates to the work schedule.
func (p *Proactor) PermanentWork() int { return p.work.PermanentWork() }

// RunOne delegates to the work schedule, unblocking early if Stop is called.
func (p *Proactor) RunOne() int { return p.work.RunOne(p.stopCh) }

// Start spawns Run in a new goroutine and returns immediately; call Wait to
// join it. Safe to call more than once (e.g. once implicitly via
// Config.WorkerEnabled and once explicitly) — only the first call spawns
// the goroutine.
func (p *Proactor) Start() {
	p.startOnce.Do(func() {
		var g errgroup.Group
		p.grp = &g
		g.Go(func() error {
			p.Run()
			return nil
		})
	})
}

// Wait blocks until the goroutine started by Start has returned. It is a
// no-op if Start was never called (e.g. the caller drives Run itself).
func (p *Proactor) Wait() error {
	if p.grp == nil {
		return nil
	}
	return p.grp.Wait()
}
