package proactor

import (
	"errors"
	"net"
	"time"

	"github.com/momentics/proactor/api"
)

// Poll performs exactly one poll/dispatch iteration: it queries the poll
// set with the current timeout, services every ready socket, and enqueues
// any resulting completions. It returns the number of completions
// enqueued. outHandled, if non-nil, receives the number of sockets that had
// at least one event serviced. Poll may be called standalone by an embedder
// that wants to drive the loop itself instead of calling Run.
func (p *Proactor) Poll(outHandled *int) (int, error) {
	timeoutMs := int(p.timeout.Load() / time.Millisecond)
	n, err := p.pollSet.Poll(timeoutMs, p.eventBuf)
	if err != nil {
		return 0, err
	}
	p.metrics.inc("poll_cycles", 1)

	handled := 0
	completions := 0
	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		sock := p.lookupSocket(ev.Fd)
		if sock == nil {
			continue
		}
		serviced := false
		if ev.Mode.Has(api.PollError) {
			completions += p.fail(ev.Fd)
			serviced = true
		} else {
			if ev.Mode.Has(api.PollWrite) {
				completions += p.send(ev.Fd, sock)
				serviced = true
			}
			if ev.Mode.Has(api.PollRead) {
				completions += p.receive(ev.Fd, sock)
				serviced = true
			}
		}
		if serviced {
			handled++
		}
	}
	if outHandled != nil {
		*outHandled = handled
	}
	p.metrics.inc("events_handled", int64(handled))
	p.metrics.inc("completions_enqueued", int64(completions))
	return completions, nil
}

func (p *Proactor) send(fd uintptr, sock api.Socket) int {
	h := p.writeMap.peekHead(fd)
	if h == nil {
		return 0
	}
	var n int
	var err error
	if h.isDatagramSend() {
		n, err = sock.SendTo(h.sendBuf.Bytes(), h.sendAddr.Addr())
	} else {
		n, err = sock.Send(h.sendBuf.Bytes())
	}
	return p.finishIO(p.writeMap, fd, h, n, err)
}

func (p *Proactor) receive(fd uintptr, sock api.Socket) int {
	h := p.readMap.peekHead(fd)
	if h == nil {
		return 0
	}
	if avail, aerr := sock.Available(); aerr == nil && avail > len(*h.recvBuf) {
		grown := make([]byte, avail)
		*h.recvBuf = grown
	}
	var n int
	var err error
	var addr net.Addr
	if h.isDatagramReceive() {
		n, addr, err = sock.ReceiveFrom(*h.recvBuf)
	} else {
		n, err = sock.Receive(*h.recvBuf)
	}
	if err == nil && h.recvAddr != nil {
		*h.recvAddr = addr
	}
	return p.finishIO(p.readMap, fd, h, n, err)
}

// finishIO pops the head handler and enqueues its completion, unless the
// operation would block, in which case the handler stays at the head of the
// queue for the next readiness event.
func (p *Proactor) finishIO(m *subscriberMap, fd uintptr, h *Handler, n int, err error) int {
	if err != nil {
		if errors.Is(err, api.ErrWouldBlock) {
			return 0
		}
		m.popHead(fd)
		p.deregisterIfIdle(fd)
		p.completion.enqueue(h.onCompletion, 0,
			api.NewError(api.ErrCodeConnection, "socket operation failed").WithContext("cause", err))
		return 1
	}
	m.popHead(fd)
	p.deregisterIfIdle(fd)
	p.completion.enqueue(h.onCompletion, n, nil)
	return 1
}

// fail synthesizes an error completion for the head-of-queue Handler on
// both directions of fd, in response to a poll-reported error/hangup event.
func (p *Proactor) fail(fd uintptr) int {
	n := 0
	if h := p.readMap.peekHead(fd); h != nil {
		p.readMap.popHead(fd)
		p.completion.enqueue(h.onCompletion, 0, api.NewError(api.ErrCodeConnection, "socket error"))
		n++
	}
	if h := p.writeMap.peekHead(fd); h != nil {
		p.writeMap.popHead(fd)
		p.completion.enqueue(h.onCompletion, 0, api.NewError(api.ErrCodeConnection, "socket error"))
		n++
	}
	p.deregisterIfIdle(fd)
	return n
}

// Run drives the poll/dispatch loop until Stop is called. It interleaves
// scheduled/permanent work with poll iterations, backing off adaptively
// when a cycle did no work, and flushes any handlers still pending when the
// loop exits.
func (p *Proactor) Run() {
	if !p.state.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
		return
	}
	defer close(p.runDone)
	for {
		select {
		case <-p.stopCh:
			p.state.Store(int32(stateStopped))
			p.flushPending()
			p.completion.stop()
			p.completion.wait()
			return
		default:
		}

		didWork := p.work.doWork(false, false) > 0

		n, err := p.Poll(nil)
		if err != nil {
			p.log.Error().Err(err).Msg("poll iteration failed")
		}
		if n > 0 {
			didWork = true
		}

		if didWork {
			p.backoff.Reset()
		} else {
			p.backoff.SleepWake(p.stopCh, p.wakeCh)
		}
	}
}

// flushPending drains every still-pending handler and completes it with a
// "closed" error, rather than silently dropping it as the source header's
// destructor effectively does.
func (p *Proactor) flushPending() {
	for _, fd := range p.readMap.fds() {
		for _, h := range p.readMap.drain(fd) {
			p.completion.enqueue(h.onCompletion, 0, api.NewError(api.ErrCodeClosed, "proactor stopped"))
		}
	}
	for _, fd := range p.writeMap.fds() {
		for _, h := range p.writeMap.drain(fd) {
			p.completion.enqueue(h.onCompletion, 0, api.NewError(api.ErrCodeClosed, "proactor stopped"))
		}
	}
}

// Stop requests termination. If Run/Start is active, it signals the loop
// and returns immediately; call Wait to join it. If Run was never called
// (a caller driving Poll directly), Stop performs the pending-handler
// flush and completion-executor shutdown itself, synchronously.
func (p *Proactor) Stop() {
	if p.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		close(p.stopCh)
		_ = p.pollSet.WakeUp()
		return
	}
	if p.state.CompareAndSwap(int32(stateIdle), int32(stateStopped)) {
		close(p.stopCh)
		p.flushPending()
		p.completion.stop()
		p.completion.wait()
	}
}

// WakeUp unblocks a concurrent Poll/Run iteration, e.g. after registering
// new work from another goroutine.
func (p *Proactor) WakeUp() error {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
	return p.pollSet.WakeUp()
}
