package adapter

import (
	"io"
	"net"
	"os"
	"time"

	N "github.com/fundon/smol-tokio-hyper-benchmarks/common/network"
)

var (
	_ N.ConnectedConn = (*Stream)(nil)
	_ N.HalfCloser    = (*Stream)(nil)
	_ N.PartialWriter = (*Stream)(nil)
	_ N.Flusher       = (*Stream)(nil)
)

// Stream turns a reactor-driven socket into a blocking net.Conn.
//
// An operation that would block registers interest with the reactor and
// suspends the calling goroutine until the socket is ready. One reader and
// one writer may use a Stream concurrently.
type Stream struct {
	conn          N.PollConn
	connected     N.Connected
	readDeadline  pipeDeadline
	writeDeadline pipeDeadline
}

func NewStream(conn N.PollConn) *Stream {
	return &Stream{
		conn: conn,
		connected: N.Connected{
			Local:       net.TCPAddrFromAddrPort(conn.LocalAddr()),
			Remote:      net.TCPAddrFromAddrPort(conn.RemoteAddr()),
			Established: time.Now(),
		},
		readDeadline:  makePipeDeadline(),
		writeDeadline: makePipeDeadline(),
	}
}

// Read returns as soon as some bytes are available. io.EOF is returned once
// the peer finished sending.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		cancel := s.readDeadline.wait()
		if isClosedChan(cancel) {
			return 0, s.opError("read", os.ErrDeadlineExceeded)
		}
		n, err := s.conn.TryRead(p)
		switch err {
		case nil:
			return n, nil
		case io.EOF:
			return 0, io.EOF
		case N.ErrWouldBlock:
		default:
			return 0, s.opError("read", err)
		}
		err = s.conn.WaitRead(cancel)
		if err != nil {
			return 0, s.opError("read", err)
		}
	}
}

// WriteSome returns as soon as at least one byte of p was accepted by the
// socket. The caller is responsible for writing the remainder.
func (s *Stream) WriteSome(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		cancel := s.writeDeadline.wait()
		if isClosedChan(cancel) {
			return 0, s.opError("write", os.ErrDeadlineExceeded)
		}
		n, err := s.conn.TryWrite(p)
		switch err {
		case nil:
			return n, nil
		case N.ErrWouldBlock:
		default:
			return 0, s.opError("write", err)
		}
		err = s.conn.WaitWrite(cancel)
		if err != nil {
			return 0, s.opError("write", err)
		}
	}
}

// Write writes all of p, retrying partial writes.
func (s *Stream) Write(p []byte) (n int, err error) {
	for n < len(p) {
		var written int
		written, err = s.WriteSome(p[n:])
		n += written
		if err != nil {
			return
		}
		if written == 0 {
			return n, s.opError("write", io.ErrShortWrite)
		}
	}
	return
}

// Flush is a no-op unless the socket buffers writes itself.
func (s *Stream) Flush() error {
	if flusher, isFlusher := s.conn.(N.Flusher); isFlusher {
		return flusher.Flush()
	}
	return nil
}

// CloseWrite shuts down the outbound direction. Reading keeps working.
func (s *Stream) CloseWrite() error {
	err := s.conn.CloseWrite()
	if err != nil {
		return s.opError("close", err)
	}
	return nil
}

// CloseRead shuts down the inbound direction. Later reads return io.EOF.
func (s *Stream) CloseRead() error {
	err := s.conn.CloseRead()
	if err != nil {
		return s.opError("close", err)
	}
	return nil
}

// Shutdown is an alias of CloseWrite.
func (s *Stream) Shutdown() error {
	return s.CloseWrite()
}

// Close releases the socket. Suspended operations return net.ErrClosed.
func (s *Stream) Close() error {
	err := s.conn.Close()
	if err != nil {
		return s.opError("close", err)
	}
	return nil
}

func (s *Stream) LocalAddr() net.Addr {
	return s.connected.Local
}

func (s *Stream) RemoteAddr() net.Addr {
	return s.connected.Remote
}

func (s *Stream) Connected() N.Connected {
	return s.connected
}

func (s *Stream) SetDeadline(t time.Time) error {
	s.readDeadline.set(t)
	s.writeDeadline.set(t)
	return nil
}

func (s *Stream) SetReadDeadline(t time.Time) error {
	s.readDeadline.set(t)
	return nil
}

func (s *Stream) SetWriteDeadline(t time.Time) error {
	s.writeDeadline.set(t)
	return nil
}

func (s *Stream) opError(op string, err error) error {
	return &net.OpError{
		Op:     op,
		Net:    "tcp",
		Source: s.connected.Local,
		Addr:   s.connected.Remote,
		Err:    err,
	}
}
