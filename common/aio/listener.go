//go:build linux || darwin

package aio

import (
	"net/netip"
	"os"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
	N "github.com/fundon/smol-tokio-hyper-benchmarks/common/network"
	"github.com/fundon/smol-tokio-hyper-benchmarks/common/reactor"

	"golang.org/x/sys/unix"
)

// Listener is a bound, listening TCP socket registered with a reactor.
type Listener struct {
	pollFD
	addr netip.AddrPort
}

// Listen binds addr and starts listening on it. Port 0 picks an ephemeral
// port, the chosen one is reported by Addr.
func Listen(r *reactor.Reactor, addr netip.AddrPort) (*Listener, error) {
	if !addr.IsValid() {
		return nil, E.New("invalid listen address: ", addr)
	}
	family, sockaddr := toSockaddr(addr)
	fd, err := newStreamSocket(family)
	if err != nil {
		return nil, err
	}
	err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if family == unix.AF_INET6 {
		unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}
	err = unix.Bind(fd, sockaddr)
	if err != nil {
		unix.Close(fd)
		return nil, E.Cause(os.NewSyscallError("bind", err), "bind ", addr)
	}
	err = unix.Listen(fd, unix.SOMAXCONN)
	if err != nil {
		unix.Close(fd)
		return nil, E.Cause(os.NewSyscallError("listen", err), "listen ", addr)
	}
	return &Listener{
		pollFD: pollFD{reactor: r, fd: fd},
		addr:   localAddr(fd),
	}, nil
}

// TryAccept takes the next queued connection without blocking. It returns
// N.ErrWouldBlock when the queue is empty and net.ErrClosed once the listener
// was closed. Any other error comes straight from accept(2).
func (l *Listener) TryAccept() (*Conn, error) {
	err := l.acquire()
	if err != nil {
		return nil, err
	}
	defer l.release()
	for {
		fd, sockaddr, err := accept(l.fd)
		switch err {
		case nil:
			return newConn(l.reactor, fd, fromSockaddr(sockaddr)), nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return nil, N.ErrWouldBlock
		default:
			return nil, os.NewSyscallError("accept", err)
		}
	}
}

// WaitAccept suspends until a connection may be queued.
func (l *Listener) WaitAccept(done <-chan struct{}) error {
	return l.wait(reactor.InterestRead, done)
}

func (l *Listener) Addr() netip.AddrPort {
	return l.addr
}

func (l *Listener) Close() error {
	return l.close()
}
