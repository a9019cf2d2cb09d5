package http

import (
	"net"
	"os"
	"sync"
	"sync/atomic"

	N "github.com/fundon/smol-tokio-hyper-benchmarks/common/network"
)

// serverConn reports when the connection was closed, either by net/http or by
// the handler that hijacked it.
type serverConn struct {
	net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newServerConn(conn net.Conn) *serverConn {
	return &serverConn{Conn: conn, done: make(chan struct{})}
}

func (c *serverConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return err
}

func (c *serverConn) CloseWrite() error {
	if halfCloser, isHalfCloser := c.Conn.(N.HalfCloser); isHalfCloser {
		return halfCloser.CloseWrite()
	}
	return os.ErrInvalid
}

func (c *serverConn) Connected() N.Connected {
	if connectedConn, isConnected := c.Conn.(N.ConnectedConn); isConnected {
		return connectedConn.Connected()
	}
	return N.Connected{Local: c.LocalAddr(), Remote: c.RemoteAddr()}
}

// connListener yields its connection once. Further calls to Accept block until
// the connection or the listener is closed, so http.Server.Serve returns only
// when the connection is finished.
type connListener struct {
	conn      *serverConn
	accepted  atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

func newConnListener(conn *serverConn) *connListener {
	return &connListener{conn: conn, closed: make(chan struct{})}
}

func (l *connListener) Accept() (net.Conn, error) {
	if l.accepted.CompareAndSwap(false, true) {
		return l.conn, nil
	}
	select {
	case <-l.conn.done:
	case <-l.closed:
	}
	return nil, net.ErrClosed
}

func (l *connListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	return nil
}

func (l *connListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}
