// Package proactor implements the single-threaded, readiness-poll-driven
// socket proactor: callers issue add-style I/O intents against non-blocking
// sockets and later receive a completion callback dispatched off the poll
// thread, on a dedicated completion executor goroutine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package proactor

import (
	"net"

	"github.com/momentics/proactor/api"
)

// Callback receives a completion's outcome: err is nil on success, and n is
// the number of bytes transferred.
type Callback func(err error, n int)

// BufSlot discriminates a caller-borrowed buffer, which must outlive the
// pending operation, from one the Handler owns by value. Borrowed is the
// common case (AddSend); Owned lets a caller hand off a buffer it will not
// touch again (AddSendOwned), matching the source header's Buffer&& overload.
type BufSlot struct {
	data  []byte
	owned bool
}

func borrowedBuf(b []byte) BufSlot { return BufSlot{data: b} }
func ownedBuf(b []byte) BufSlot    { return BufSlot{data: b, owned: true} }

// Bytes returns the slot's current contents.
func (s BufSlot) Bytes() []byte { return s.data }

// IsOwned reports whether the Handler owns this buffer outright.
func (s BufSlot) IsOwned() bool { return s.owned }

// AddrSlot discriminates a borrowed destination address from an owned one,
// mirroring BufSlot for the address half of a datagram send.
type AddrSlot struct {
	addr  net.Addr
	owned bool
}

func borrowedAddr(a net.Addr) AddrSlot { return AddrSlot{addr: a} }
func ownedAddr(a net.Addr) AddrSlot    { return AddrSlot{addr: a, owned: true} }

// Addr returns the destination address.
func (s AddrSlot) Addr() net.Addr { return s.addr }

// IsOwned reports whether the Handler owns this address outright.
func (s AddrSlot) IsOwned() bool { return s.owned }

// Handler is one pending I/O request. At most one Handler is "active" per
// socket per direction at any instant: its position at the head of a
// subscriberMap queue for that socket and direction.
type Handler struct {
	sock api.Socket

	// recvBuf/recvAddr are set for receive-direction handlers. recvBuf
	// points at the caller's buffer variable so the poll loop may replace
	// it with a larger slice to match an Available() readability hint;
	// recvAddr, when non-nil, receives the datagram sender's address.
	recvBuf  *[]byte
	recvAddr *net.Addr

	// sendBuf/sendAddr are set for send-direction handlers. hasAddr marks
	// a datagram send (AddSendTo/AddSendToOwned) versus a stream send.
	sendBuf  BufSlot
	hasAddr  bool
	sendAddr AddrSlot

	onCompletion Callback
}

func (h *Handler) isDatagramSend() bool    { return h.hasAddr }
func (h *Handler) isDatagramReceive() bool { return h.recvAddr != nil }
