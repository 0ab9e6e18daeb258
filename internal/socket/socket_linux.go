//go:build linux

// Package socket provides non-blocking stream/datagram sockets built
// directly on golang.org/x/sys/unix, bypassing the Go runtime's internal
// netpoller so that readiness is driven exclusively by the proactor's own
// PollSet.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on internal/transport/transport_linux.go in the source
// repository: non-blocking socket creation via unix.Socket(...SOCK_NONBLOCK),
// TCP_NODELAY, and EAGAIN/EWOULDBLOCK translated to api.ErrWouldBlock
// instead of the teacher's "return nil, nil" convention, so the proactor's
// finishIO can distinguish "nothing happened yet" from a real error.
package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/momentics/proactor/api"
)

// streamSocket wraps a connected, non-blocking stream (TCP) socket.
type streamSocket struct {
	fd int
}

// DialTCP creates a non-blocking TCP socket and begins connecting to addr.
// The connect may still be in progress (EINPROGRESS) when this returns;
// callers should register the socket for PollWrite and treat the first
// write-readiness as "connected" (SO_ERROR should then be checked by the
// caller via getsockopt if it needs a definitive success/failure signal).
func DialTCP(addr string) (api.Socket, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	domain := unix.AF_INET
	if raddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	sa, err := tcpAddrToSockaddr(raddr)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &streamSocket{fd: fd}, nil
}

// NewStreamSocket wraps an already-connected non-blocking fd, e.g. one
// returned by TCPListener.Accept.
func NewStreamSocket(fd int) api.Socket {
	return &streamSocket{fd: fd}
}

func (s *streamSocket) Send(buf []byte) (int, error) {
	n, err := unix.Write(s.fd, buf)
	return translate(n, err)
}

// Receive reads from the stream, returning (0, nil) on EOF (the peer has
// shut down its write side) so the proactor's finishIO delivers this as a
// normal zero-byte success completion rather than a connection error.
func (s *streamSocket) Receive(buf []byte) (int, error) {
	n, err := unix.Read(s.fd, buf)
	if err == nil && n == 0 {
		return 0, nil
	}
	return translate(n, err)
}

func (s *streamSocket) SendTo([]byte, net.Addr) (int, error) {
	return 0, api.ErrNotSupported
}

func (s *streamSocket) ReceiveFrom([]byte) (int, net.Addr, error) {
	return 0, nil, api.ErrNotSupported
}

func (s *streamSocket) Available() (int, error) {
	n, err := unix.IoctlGetInt(s.fd, unix.TIOCINQ)
	if err != nil {
		return 0, api.ErrNotSupported
	}
	return n, nil
}

func (s *streamSocket) Fd() uintptr { return uintptr(s.fd) }

func (s *streamSocket) Close() error { return unix.Close(s.fd) }

// UDPSocket wraps a non-blocking, bound UDP socket.
type UDPSocket struct {
	fd int
}

// NewUDPSocket creates a non-blocking UDP socket bound to bindAddr (which
// may have a zero port for an ephemeral client socket).
func NewUDPSocket(bindAddr string) (*UDPSocket, error) {
	laddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}
	domain := unix.AF_INET
	if laddr.IP != nil && laddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	sa, err := udpAddrToSockaddr(laddr)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	return &UDPSocket{fd: fd}, nil
}

func (s *UDPSocket) Send([]byte) (int, error) {
	return 0, api.ErrNotSupported
}

func (s *UDPSocket) Receive([]byte) (int, error) {
	return 0, api.ErrNotSupported
}

func (s *UDPSocket) SendTo(buf []byte, addr net.Addr) (int, error) {
	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, api.ErrInvalidArgument
	}
	sa, err := udpAddrToSockaddr(ua)
	if err != nil {
		return 0, err
	}
	err = unix.Sendto(s.fd, buf, 0, sa)
	return translate(len(buf), err)
}

func (s *UDPSocket) ReceiveFrom(buf []byte) (int, net.Addr, error) {
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		_, terr := translate(n, err)
		return 0, nil, terr
	}
	return n, sockaddrToUDPAddr(from), nil
}

func (s *UDPSocket) Available() (int, error) {
	n, err := unix.IoctlGetInt(s.fd, unix.TIOCINQ)
	if err != nil {
		return 0, api.ErrNotSupported
	}
	return n, nil
}

func (s *UDPSocket) Fd() uintptr { return uintptr(s.fd) }

func (s *UDPSocket) Close() error { return unix.Close(s.fd) }

// TCPListener accepts non-blocking stream connections.
type TCPListener struct {
	fd int
}

// ListenTCP creates a non-blocking listening TCP socket bound to addr.
func ListenTCP(addr string) (*TCPListener, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	domain := unix.AF_INET
	if laddr.IP != nil && laddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	sa, err := tcpAddrToSockaddr(laddr)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &TCPListener{fd: fd}, nil
}

// Fd returns the listening descriptor, for PollRead registration.
func (l *TCPListener) Fd() uintptr { return uintptr(l.fd) }

// Accept accepts one pending connection, returning api.ErrWouldBlock if
// none is pending.
func (l *TCPListener) Accept() (api.Socket, net.Addr, error) {
	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil, api.ErrWouldBlock
		}
		return nil, nil, err
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return &streamSocket{fd: nfd}, sockaddrToTCPAddr(sa), nil
}

// Close closes the listening socket.
func (l *TCPListener) Close() error { return unix.Close(l.fd) }

// LocalAddr reports the address the listener is bound to, useful when
// binding to port 0 for an ephemeral port.
func (l *TCPListener) LocalAddr() (net.Addr, error) {
	sa, err := unix.Getsockname(l.fd)
	if err != nil {
		return nil, err
	}
	return sockaddrToTCPAddr(sa), nil
}

// LocalAddr reports the address a datagram socket is bound to.
func (s *UDPSocket) LocalAddr() (net.Addr, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return nil, err
	}
	return sockaddrToUDPAddr(sa), nil
}

func translate(n int, err error) (int, error) {
	if err == nil {
		return n, nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINPROGRESS {
		return 0, api.ErrWouldBlock
	}
	return 0, err
}

func tcpAddrToSockaddr(a *net.TCPAddr) (unix.Sockaddr, error) {
	if ip4 := a.IP.To4(); ip4 != nil {
		var sa unix.SockaddrInet4
		sa.Port = a.Port
		copy(sa.Addr[:], ip4)
		return &sa, nil
	}
	var sa unix.SockaddrInet6
	sa.Port = a.Port
	if a.IP != nil {
		copy(sa.Addr[:], a.IP.To16())
	}
	return &sa, nil
}

func udpAddrToSockaddr(a *net.UDPAddr) (unix.Sockaddr, error) {
	if a.IP == nil || a.IP.To4() != nil {
		var sa unix.SockaddrInet4
		sa.Port = a.Port
		if a.IP != nil {
			copy(sa.Addr[:], a.IP.To4())
		}
		return &sa, nil
	}
	var sa unix.SockaddrInet6
	sa.Port = a.Port
	copy(sa.Addr[:], a.IP.To16())
	return &sa, nil
}

func sockaddrToUDPAddr(sa unix.Sockaddr) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: append([]byte(nil), s.Addr[:]...), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: append([]byte(nil), s.Addr[:]...), Port: s.Port}
	default:
		return nil
	}
}

func sockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), s.Addr[:]...), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), s.Addr[:]...), Port: s.Port}
	default:
		return nil
	}
}
