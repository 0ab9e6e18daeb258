//go:build linux

package proactor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/proactor/internal/pollset"
	"github.com/momentics/proactor/internal/socket"
)

func newTestProactor(t *testing.T) *Proactor {
	t.Helper()
	ps, err := pollset.New()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.WorkerEnabled = false
	p := NewWithTimeout(ps, 10*time.Millisecond, cfg)
	t.Cleanup(func() {
		p.Stop()
		p.Wait()
		_ = ps.Close()
	})
	return p
}

// TestProactorTCPRoundTrip exercises a full accept/send/receive round trip
// over a real loopback TCP connection. The listener is polled for a
// pending connection via a permanent work entry (Accept is itself
// non-blocking, so no separate PollSet registration is needed for it); once
// accepted, the server side registers AddReceive and the client writes a
// payload via AddSend.
func TestProactorTCPRoundTrip(t *testing.T) {
	p := newTestProactor(t)
	p.Start()

	ln, err := socket.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	laddr, err := ln.LocalAddr()
	require.NoError(t, err)

	serverBuf := make([]byte, 64)
	recvDone := make(chan []byte, 1)

	p.AddWork(func() {
		conn, _, aerr := ln.Accept()
		if aerr != nil {
			return
		}
		p.AddReceive(conn, &serverBuf, func(err error, n int) {
			require.NoError(t, err)
			recvDone <- append([]byte(nil), serverBuf[:n]...)
		})
	}, PermanentCompletionHandler)

	cli, err := socket.DialTCP(laddr.String())
	require.NoError(t, err)
	defer cli.Close()

	sendDone := make(chan struct{}, 1)
	p.AddSend(cli, []byte("hello proactor"), func(err error, n int) {
		require.NoError(t, err)
		require.Equal(t, len("hello proactor"), n)
		sendDone <- struct{}{}
	})

	select {
	case <-sendDone:
	case <-time.After(2 * time.Second):
		t.Fatal("send never completed")
	}

	select {
	case got := <-recvDone:
		require.Equal(t, "hello proactor", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("receive never completed")
	}
}

// TestProactorUDPEcho exercises AddSendTo/AddReceiveFrom over loopback UDP.
func TestProactorUDPEcho(t *testing.T) {
	p := newTestProactor(t)
	p.Start()

	server, err := socket.NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()
	serverAddr, err := server.LocalAddr()
	require.NoError(t, err)

	client, err := socket.NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	serverBuf := make([]byte, 64)
	var fromAddr net.Addr
	recvDone := make(chan []byte, 1)
	p.AddReceiveFrom(server, &serverBuf, &fromAddr, func(err error, n int) {
		require.NoError(t, err)
		recvDone <- append([]byte(nil), serverBuf[:n]...)
	})

	sendDone := make(chan struct{}, 1)
	p.AddSendTo(client, []byte("ping"), serverAddr, func(err error, n int) {
		require.NoError(t, err)
		sendDone <- struct{}{}
	})

	select {
	case <-sendDone:
	case <-time.After(2 * time.Second):
		t.Fatal("send never completed")
	}
	select {
	case got := <-recvDone:
		require.Equal(t, "ping", string(got))
		require.NotNil(t, fromAddr)
	case <-time.After(2 * time.Second):
		t.Fatal("receive never completed")
	}
}

// TestProactorStreamHalfClose verifies that a peer shutting down its write
// side produces a zero-byte, nil-error completion (end-of-stream) rather
// than a connection-error completion.
func TestProactorStreamHalfClose(t *testing.T) {
	p := newTestProactor(t)
	p.Start()

	ln, err := socket.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	laddr, err := ln.LocalAddr()
	require.NoError(t, err)

	type completion struct {
		err error
		n   int
	}
	recvDone := make(chan completion, 1)
	serverBuf := make([]byte, 64)

	p.AddWork(func() {
		conn, _, aerr := ln.Accept()
		if aerr != nil {
			return
		}
		p.AddReceive(conn, &serverBuf, func(err error, n int) {
			recvDone <- completion{err: err, n: n}
		})
	}, PermanentCompletionHandler)

	cli, err := net.Dial("tcp", laddr.String())
	require.NoError(t, err)
	defer cli.Close()
	tcpConn, ok := cli.(*net.TCPConn)
	require.True(t, ok)
	require.NoError(t, tcpConn.CloseWrite())

	select {
	case got := <-recvDone:
		require.NoError(t, got.err)
		require.Equal(t, 0, got.n)
	case <-time.After(2 * time.Second):
		t.Fatal("half-close completion never arrived")
	}
}

// TestProactorSendReceiveOrdering verifies that two Handlers queued
// back-to-back for one socket's direction are serviced in FIFO order: two
// sends queued on the client socket complete in submission order, and two
// receives queued upfront on the server socket resolve in arrival order.
func TestProactorSendReceiveOrdering(t *testing.T) {
	p := newTestProactor(t)
	p.Start()

	server, err := socket.NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()
	serverAddr, err := server.LocalAddr()
	require.NoError(t, err)

	client, err := socket.NewUDPSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	var recvOrder []string
	recvDone := make(chan struct{}, 2)
	bufA := make([]byte, 64)
	bufB := make([]byte, 64)
	p.AddReceiveFrom(server, &bufA, nil, func(err error, n int) {
		require.NoError(t, err)
		recvOrder = append(recvOrder, string(bufA[:n]))
		recvDone <- struct{}{}
	})
	p.AddReceiveFrom(server, &bufB, nil, func(err error, n int) {
		require.NoError(t, err)
		recvOrder = append(recvOrder, string(bufB[:n]))
		recvDone <- struct{}{}
	})

	var sendOrder []string
	sendDone := make(chan struct{}, 2)
	p.AddSendTo(client, []byte("msg_A"), serverAddr, func(err error, _ int) {
		require.NoError(t, err)
		sendOrder = append(sendOrder, "msg_A")
		sendDone <- struct{}{}
	})
	p.AddSendTo(client, []byte("msg_B"), serverAddr, func(err error, _ int) {
		require.NoError(t, err)
		sendOrder = append(sendOrder, "msg_B")
		sendDone <- struct{}{}
	})

	for i := 0; i < 2; i++ {
		select {
		case <-sendDone:
		case <-time.After(2 * time.Second):
			t.Fatal("send completions never arrived")
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-recvDone:
		case <-time.After(2 * time.Second):
			t.Fatal("receive completions never arrived")
		}
	}

	require.Equal(t, []string{"msg_A", "msg_B"}, sendOrder)
	require.Equal(t, []string{"msg_A", "msg_B"}, recvOrder)
}
