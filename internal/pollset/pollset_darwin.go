//go:build darwin

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on poller/kqueue_unix.go from the dreamans/evnio repository:
// EVFILT_READ/EVFILT_WRITE registration per fd, plus an EVFILT_USER event
// used purely as a wake primitive (ident 0, NOTE_TRIGGER), generalized from
// a single fixed-direction Add/Enable/Disable API to the per-fd updatable
// interest set api.PollSet requires.
package pollset

import (
	"sync"
	"syscall"

	"github.com/momentics/proactor/api"
)

const wakeIdent = 0

type kqueuePollSet struct {
	fd     int
	wakeMu sync.Mutex
}

// New constructs a kqueue-backed api.PollSet.
func New() (api.PollSet, error) {
	fd, err := syscall.Kqueue()
	if err != nil {
		return nil, err
	}
	_, err = syscall.Kevent(fd, []syscall.Kevent_t{{
		Ident:  wakeIdent,
		Filter: syscall.EVFILT_USER,
		Flags:  syscall.EV_ADD | syscall.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return &kqueuePollSet{fd: fd}, nil
}

func (p *kqueuePollSet) changeFor(fd uintptr, mode api.Mode) []syscall.Kevent_t {
	var changes []syscall.Kevent_t
	addOrDel := func(filter int16, want bool) {
		flags := uint16(syscall.EV_DELETE)
		if want {
			flags = syscall.EV_ADD
		}
		changes = append(changes, syscall.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  flags,
		})
	}
	addOrDel(syscall.EVFILT_READ, mode.Has(api.PollRead))
	addOrDel(syscall.EVFILT_WRITE, mode.Has(api.PollWrite))
	return changes
}

func (p *kqueuePollSet) Add(fd uintptr, mode api.Mode) error {
	_, err := syscall.Kevent(p.fd, p.changeFor(fd, mode), nil, nil)
	return err
}

func (p *kqueuePollSet) Update(fd uintptr, mode api.Mode) error {
	return p.Add(fd, mode)
}

func (p *kqueuePollSet) Remove(fd uintptr) error {
	_, err := syscall.Kevent(p.fd, []syscall.Kevent_t{
		{Ident: uint64(fd), Filter: syscall.EVFILT_READ, Flags: syscall.EV_DELETE},
		{Ident: uint64(fd), Filter: syscall.EVFILT_WRITE, Flags: syscall.EV_DELETE},
	}, nil, nil)
	return err
}

func (p *kqueuePollSet) Poll(timeoutMs int, dst []api.Event) (int, error) {
	raw := make([]syscall.Kevent_t, len(dst))
	var ts *syscall.Timespec
	if timeoutMs >= 0 {
		t := syscall.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := syscall.Kevent(p.fd, nil, raw, ts)
	if err != nil {
		if err == syscall.EINTR {
			return 0, nil
		}
		return 0, err
	}
	out := 0
	for i := 0; i < n; i++ {
		ev := raw[i]
		if ev.Filter == syscall.EVFILT_USER && ev.Ident == wakeIdent {
			continue
		}
		var mode api.Mode
		if ev.Flags&(syscall.EV_ERROR|syscall.EV_EOF) != 0 {
			mode |= api.PollError
		}
		switch ev.Filter {
		case syscall.EVFILT_READ:
			mode |= api.PollRead
		case syscall.EVFILT_WRITE:
			mode |= api.PollWrite
		}
		dst[out] = api.Event{Fd: uintptr(ev.Ident), Mode: mode}
		out++
	}
	return out, nil
}

func (p *kqueuePollSet) WakeUp() error {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()
	_, err := syscall.Kevent(p.fd, []syscall.Kevent_t{{
		Ident:  wakeIdent,
		Filter: syscall.EVFILT_USER,
		Fflags: syscall.NOTE_TRIGGER,
	}}, nil, nil)
	return err
}

func (p *kqueuePollSet) Close() error {
	return syscall.Close(p.fd)
}
