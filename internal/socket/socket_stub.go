//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package socket

import (
	"errors"
	"net"

	"github.com/momentics/proactor/api"
)

var errUnsupported = errors.New("socket: this platform is not supported")

// DialTCP is unimplemented outside Linux; the non-blocking raw-socket path
// this package takes is Linux-specific (see socket_linux.go). A Darwin
// implementation would follow the same shape over unix.Socket with
// O_NONBLOCK set via fcntl after creation (Darwin's unix package lacks
// SOCK_NONBLOCK on the socket() call itself).
func DialTCP(string) (api.Socket, error) { return nil, errUnsupported }

// UDPSocket is unimplemented outside Linux.
type UDPSocket struct{}

// NewUDPSocket is unimplemented outside Linux.
func NewUDPSocket(string) (*UDPSocket, error) { return nil, errUnsupported }

// Send is unimplemented outside Linux.
func (s *UDPSocket) Send([]byte) (int, error) { return 0, errUnsupported }

// Receive is unimplemented outside Linux.
func (s *UDPSocket) Receive([]byte) (int, error) { return 0, errUnsupported }

// SendTo is unimplemented outside Linux.
func (s *UDPSocket) SendTo([]byte, net.Addr) (int, error) { return 0, errUnsupported }

// ReceiveFrom is unimplemented outside Linux.
func (s *UDPSocket) ReceiveFrom([]byte) (int, net.Addr, error) { return 0, nil, errUnsupported }

// Available is unimplemented outside Linux.
func (s *UDPSocket) Available() (int, error) { return 0, errUnsupported }

// Fd is unimplemented outside Linux.
func (s *UDPSocket) Fd() uintptr { return 0 }

// Close is unimplemented outside Linux.
func (s *UDPSocket) Close() error { return errUnsupported }

// LocalAddr is unimplemented outside Linux.
func (s *UDPSocket) LocalAddr() (net.Addr, error) { return nil, errUnsupported }

// TCPListener is unimplemented outside Linux.
type TCPListener struct{}

// ListenTCP is unimplemented outside Linux.
func ListenTCP(string) (*TCPListener, error) { return nil, errUnsupported }

// Fd is unimplemented outside Linux.
func (l *TCPListener) Fd() uintptr { return 0 }

// Accept is unimplemented outside Linux.
func (l *TCPListener) Accept() (api.Socket, net.Addr, error) { return nil, nil, errUnsupported }

// Close is unimplemented outside Linux.
func (l *TCPListener) Close() error { return errUnsupported }

// LocalAddr is unimplemented outside Linux.
func (l *TCPListener) LocalAddr() (net.Addr, error) { return nil, errUnsupported }
