//go:build linux || darwin

package adapter

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fundon/smol-tokio-hyper-benchmarks/common/aio"
	N "github.com/fundon/smol-tokio-hyper-benchmarks/common/network"

	"golang.org/x/sys/unix"
)

var _ net.Listener = (*Acceptor)(nil)

// Acceptor yields the connections queued on a listening socket as Streams.
//
// Next and Accept suspend while nothing is queued. Callers are served one at a
// time in arrival order. Once the listener is closed, every call returns an
// error matching net.ErrClosed.
type Acceptor struct {
	listener *aio.Listener
	addr     *net.TCPAddr
	metrics  *Metrics
	access   sync.Mutex
	done     atomic.Bool
}

func NewAcceptor(listener *aio.Listener, options ...Option) *Acceptor {
	o := newOptions(options)
	return &Acceptor{
		listener: listener,
		addr:     net.TCPAddrFromAddrPort(listener.Addr()),
		metrics:  o.metrics,
	}
}

// Next returns the next accepted connection. A transient failure is returned
// as *AcceptError and the sequence may be polled again.
func (a *Acceptor) Next() (*Stream, error) {
	a.access.Lock()
	defer a.access.Unlock()
	for {
		stream, err := a.tryNext()
		if err != N.ErrWouldBlock {
			return stream, err
		}
		err = a.listener.WaitAccept(nil)
		if err != nil {
			return nil, a.classify(err)
		}
	}
}

// TryNext polls once without suspending. It returns N.ErrWouldBlock when no
// connection is queued or another caller is already polling.
func (a *Acceptor) TryNext() (*Stream, error) {
	if !a.access.TryLock() {
		if a.done.Load() {
			return nil, a.closedError()
		}
		return nil, N.ErrWouldBlock
	}
	defer a.access.Unlock()
	return a.tryNext()
}

func (a *Acceptor) tryNext() (*Stream, error) {
	if a.done.Load() {
		return nil, a.closedError()
	}
	conn, err := a.listener.TryAccept()
	if err != nil {
		return nil, a.classify(err)
	}
	a.metrics.connectionAccepted()
	return NewStream(conn), nil
}

func (a *Acceptor) classify(err error) error {
	switch {
	case err == N.ErrWouldBlock:
		return err
	case errors.Is(err, net.ErrClosed),
		errors.Is(err, unix.EBADF),
		errors.Is(err, unix.EINVAL),
		errors.Is(err, unix.ENOTSOCK):
		a.done.Store(true)
		return a.closedError()
	default:
		a.metrics.acceptFailed()
		return &AcceptError{Cause: err}
	}
}

func (a *Acceptor) closedError() error {
	return &net.OpError{Op: "accept", Net: "tcp", Addr: a.addr, Err: net.ErrClosed}
}

// Accept implements net.Listener.
func (a *Acceptor) Accept() (net.Conn, error) {
	stream, err := a.Next()
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (a *Acceptor) Addr() net.Addr {
	return a.addr
}

// Close closes the listening socket and wakes a suspended Next.
func (a *Acceptor) Close() error {
	a.done.Store(true)
	return a.listener.Close()
}

// AcceptError is a transient accept failure, such as running out of file
// descriptors or a connection reset before it was accepted.
type AcceptError struct {
	Cause error
}

func (e *AcceptError) Error() string {
	return "accept: " + e.Cause.Error()
}

func (e *AcceptError) Unwrap() error {
	return e.Cause
}

func (e *AcceptError) Timeout() bool {
	return false
}

func (e *AcceptError) Temporary() bool {
	return true
}
