package network

import (
	"net"
	"net/netip"
	"time"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
)

// ErrWouldBlock is returned by the Try operations of a PollConn when the
// socket is not ready and the caller has to wait for readiness.
var ErrWouldBlock = E.New("operation would block")

// PollConn is a connected, non-blocking socket driven by a readiness reactor.
//
// TryRead and TryWrite never block: they either complete or return
// ErrWouldBlock. WaitRead and WaitWrite suspend the caller until the direction
// is ready, the socket is closed (net.ErrClosed) or done is closed
// (os.ErrDeadlineExceeded). A nil done channel waits without limit.
type PollConn interface {
	TryRead(p []byte) (n int, err error)
	TryWrite(p []byte) (n int, err error)
	WaitRead(done <-chan struct{}) error
	WaitWrite(done <-chan struct{}) error
	CloseRead() error
	CloseWrite() error
	Close() error
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
}

// Connected describes an established connection to the protocol layer.
type Connected struct {
	Local       net.Addr
	Remote      net.Addr
	Established time.Time
}

type ConnectedConn interface {
	net.Conn
	Connected() Connected
}

// HalfCloser closes one direction of a duplex connection.
type HalfCloser interface {
	CloseWrite() error
}

type Flusher interface {
	Flush() error
}

// PartialWriter accepts fewer bytes than requested without treating it as an error.
type PartialWriter interface {
	WriteSome(p []byte) (n int, err error)
}
