package osc

import (
	"net"
	"time"
)

// UDPSocket abstracts the receive side of a UDP socket so the receiver
// loop can be exercised in tests without binding a real port.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// UDPSocketFactory creates UDP sockets; injected so tests can supply a
// fake implementation.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

type realSocketFactory struct{}

// NewRealUDPSocketFactory returns a factory backed by net.ListenUDP.
func NewRealUDPSocketFactory() UDPSocketFactory {
	return realSocketFactory{}
}

func (realSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// FakeUDPSocket implements UDPSocket over a fixed list of datagrams.
// Once the list is exhausted every read reports a timeout, mimicking a
// deadline expiry on an idle socket.
type FakeUDPSocket struct {
	Datagrams [][]byte
	readIndex int
	Closed    bool
	RcvBuf    int
}

func (f *FakeUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if f.Closed {
		return 0, nil, net.ErrClosed
	}
	if f.readIndex >= len(f.Datagrams) {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: fakeTimeout{}}
	}
	d := f.Datagrams[f.readIndex]
	f.readIndex++
	return copy(b, d), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10024}, nil
}

func (f *FakeUDPSocket) SetReadBuffer(bytes int) error { f.RcvBuf = bytes; return nil }

func (f *FakeUDPSocket) SetReadDeadline(time.Time) error { return nil }

func (f *FakeUDPSocket) Close() error { f.Closed = true; return nil }

// FakeUDPSocketFactory returns a fixed socket, or an error to simulate a
// failed bind.
type FakeUDPSocketFactory struct {
	Socket *FakeUDPSocket
	Err    error
}

func (f *FakeUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Socket, nil
}

type fakeTimeout struct{}

func (fakeTimeout) Error() string   { return "i/o timeout" }
func (fakeTimeout) Timeout() bool   { return true }
func (fakeTimeout) Temporary() bool { return true }
