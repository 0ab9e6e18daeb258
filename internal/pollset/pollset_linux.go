//go:build linux

// Package pollset implements api.PollSet over the host's native readiness
// primitive: epoll on Linux, kqueue on Darwin. Other platforms get a stub
// whose New returns an error.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on reactor/reactor_linux.go in the source repository, generalized
// from a fixed EPOLLIN|EPOLLOUT|EPOLLET registration to per-fd, updatable
// interest sets in level-triggered mode (required so a Handler left at the
// head of its subscriberMap queue after a partial/would-block operation
// keeps being reported ready on the next Poll call).
package pollset

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/proactor/api"
)

type epollPollSet struct {
	epfd int

	wakeMu sync.Mutex
	wakeFd int
}

// New constructs an epoll-backed api.PollSet.
func New() (api.PollSet, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	ps := &epollPollSet{epfd: epfd, wakeFd: wakeFd}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, err
	}
	return ps, nil
}

func toEpollEvents(mode api.Mode) uint32 {
	var ev uint32
	if mode.Has(api.PollRead) {
		ev |= unix.EPOLLIN
	}
	if mode.Has(api.PollWrite) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPollSet) Add(fd uintptr, mode api.Mode) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, int(fd), &unix.EpollEvent{
		Events: toEpollEvents(mode),
		Fd:     int32(fd),
	})
}

func (p *epollPollSet) Update(fd uintptr, mode api.Mode) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, int(fd), &unix.EpollEvent{
		Events: toEpollEvents(mode),
		Fd:     int32(fd),
	})
}

func (p *epollPollSet) Remove(fd uintptr) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *epollPollSet) Poll(timeoutMs int, dst []api.Event) (int, error) {
	raw := make([]unix.EpollEvent, len(dst))
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	out := 0
	for i := 0; i < n; i++ {
		fd := uintptr(raw[i].Fd)
		if int(fd) == p.wakeFd {
			p.drainWake()
			continue
		}
		var mode api.Mode
		if raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP) != 0 {
			mode |= api.PollRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			mode |= api.PollWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mode |= api.PollError
		}
		dst[out] = api.Event{Fd: fd, Mode: mode}
		out++
	}
	return out, nil
}

func (p *epollPollSet) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *epollPollSet) WakeUp() error {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()
	one := [8]byte{1}
	_, err := unix.Write(p.wakeFd, one[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPollSet) Close() error {
	unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}
