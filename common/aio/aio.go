//go:build linux || darwin

// Package aio provides TCP sockets in non-blocking mode whose readiness is
// reported by a reactor.Reactor.
package aio

import (
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fundon/smol-tokio-hyper-benchmarks/common/reactor"

	"golang.org/x/sys/unix"
)

type fdWaiter chan struct{}

func (w fdWaiter) HandleFDEvent() {
	close(w)
}

// pollFD guards one descriptor registered with a reactor. Syscalls and
// reactor registrations hold access for reading, close holds it for writing,
// so the descriptor number is never used after it was released.
type pollFD struct {
	reactor *reactor.Reactor
	fd      int
	access  sync.RWMutex
	closed  atomic.Bool
}

func (f *pollFD) acquire() error {
	f.access.RLock()
	if f.closed.Load() {
		f.access.RUnlock()
		return net.ErrClosed
	}
	return nil
}

func (f *pollFD) release() {
	f.access.RUnlock()
}

func (f *pollFD) wait(interest reactor.Interest, done <-chan struct{}) error {
	waiter := make(fdWaiter)
	err := f.acquire()
	if err != nil {
		return err
	}
	err = f.reactor.Add(waiter, f.fd, interest)
	f.release()
	if err == reactor.ErrClosed {
		return net.ErrClosed
	} else if err != nil {
		return err
	}
	select {
	case <-waiter:
		if f.closed.Load() {
			return net.ErrClosed
		}
		return nil
	case <-done:
		return os.ErrDeadlineExceeded
	}
}

func (f *pollFD) close() error {
	if f.closed.Swap(true) {
		return net.ErrClosed
	}
	f.access.Lock()
	defer f.access.Unlock()
	f.reactor.Remove(f.fd)
	return os.NewSyscallError("close", unix.Close(f.fd))
}

func (f *pollFD) FD() int {
	return f.fd
}
