//go:build linux || darwin

package aio

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"os"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
	N "github.com/fundon/smol-tokio-hyper-benchmarks/common/network"
	"github.com/fundon/smol-tokio-hyper-benchmarks/common/reactor"

	"golang.org/x/sys/unix"
)

var _ N.PollConn = (*Conn)(nil)

// Conn is a connected TCP socket registered with a reactor.
type Conn struct {
	pollFD
	local  netip.AddrPort
	remote netip.AddrPort
}

func newConn(r *reactor.Reactor, fd int, remote netip.AddrPort) *Conn {
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	setNoSigpipe(fd)
	if !remote.IsValid() {
		remote = remoteAddr(fd)
	}
	return &Conn{
		pollFD: pollFD{reactor: r, fd: fd},
		local:  localAddr(fd),
		remote: remote,
	}
}

// Dial connects to addr, suspending on write readiness while the handshake
// is in progress. Cancelling ctx aborts the attempt.
func Dial(ctx context.Context, r *reactor.Reactor, addr netip.AddrPort) (*Conn, error) {
	if !addr.IsValid() {
		return nil, E.New("invalid dial address: ", addr)
	}
	family, sockaddr := toSockaddr(addr)
	fd, err := newStreamSocket(family)
	if err != nil {
		return nil, err
	}
	conn := &Conn{pollFD: pollFD{reactor: r, fd: fd}, remote: addr}
	for {
		err = unix.Connect(fd, sockaddr)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil, unix.EISCONN:
	case unix.EINPROGRESS, unix.EALREADY:
		err = conn.waitConnected(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}
	default:
		conn.Close()
		return nil, os.NewSyscallError("connect", err)
	}
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	setNoSigpipe(fd)
	conn.local = localAddr(fd)
	return conn, nil
}

func (c *Conn) waitConnected(ctx context.Context) error {
	for {
		err := c.WaitWrite(ctx.Done())
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		soErr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return os.NewSyscallError("getsockopt", err)
		}
		if soErr != 0 {
			return os.NewSyscallError("connect", unix.Errno(soErr))
		}
		_, err = unix.Getpeername(c.fd)
		if err == nil {
			return nil
		}
		if err != unix.ENOTCONN {
			return os.NewSyscallError("getpeername", err)
		}
	}
}

// TryRead performs a single non-blocking read. A closed peer is reported as io.EOF.
func (c *Conn) TryRead(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	err := c.acquire()
	if err != nil {
		return 0, err
	}
	defer c.release()
	for {
		n, err := unix.Read(c.fd, p)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, N.ErrWouldBlock
		default:
			return 0, os.NewSyscallError("read", err)
		}
	}
}

// TryWrite performs a single non-blocking write and may accept only part of p.
func (c *Conn) TryWrite(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	err := c.acquire()
	if err != nil {
		return 0, err
	}
	defer c.release()
	for {
		n, err := unix.Write(c.fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, N.ErrWouldBlock
		default:
			return 0, os.NewSyscallError("write", err)
		}
	}
}

func (c *Conn) WaitRead(done <-chan struct{}) error {
	return c.wait(reactor.InterestRead, done)
}

func (c *Conn) WaitWrite(done <-chan struct{}) error {
	return c.wait(reactor.InterestWrite, done)
}

// CloseWrite shuts down the sending side. Reading keeps working.
func (c *Conn) CloseWrite() error {
	return c.shutdown(unix.SHUT_WR)
}

// CloseRead shuts down the receiving side. Writing keeps working.
func (c *Conn) CloseRead() error {
	return c.shutdown(unix.SHUT_RD)
}

func (c *Conn) shutdown(how int) error {
	err := c.acquire()
	if err != nil {
		return err
	}
	defer c.release()
	return os.NewSyscallError("shutdown", unix.Shutdown(c.fd, how))
}

// SetWriteBuffer sets the size of the kernel send buffer.
func (c *Conn) SetWriteBuffer(bytes int) error {
	return c.setsockopt(unix.SO_SNDBUF, bytes)
}

// SetReadBuffer sets the size of the kernel receive buffer.
func (c *Conn) SetReadBuffer(bytes int) error {
	return c.setsockopt(unix.SO_RCVBUF, bytes)
}

func (c *Conn) setsockopt(option int, value int) error {
	err := c.acquire()
	if err != nil {
		return err
	}
	defer c.release()
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(c.fd, unix.SOL_SOCKET, option, value))
}

func (c *Conn) LocalAddr() netip.AddrPort {
	return c.local
}

func (c *Conn) RemoteAddr() netip.AddrPort {
	return c.remote
}

func (c *Conn) Close() error {
	return c.close()
}
