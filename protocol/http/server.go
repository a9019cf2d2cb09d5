// Package http serves HTTP/1.1 and cleartext HTTP/2 over any net.Listener,
// running every connection as a task on a network.Executor.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
	N "github.com/fundon/smol-tokio-hyper-benchmarks/common/network"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

type Server struct {
	ctx          context.Context
	executor     N.Executor
	errorHandler E.Handler
	httpServer   *http.Server
	inShutdown   atomic.Bool
	done         chan struct{}
	closeOnce    sync.Once
	access       sync.Mutex
	listeners    map[net.Listener]struct{}
	conns        map[*serverConn]struct{}
}

type Option func(*Server)

// WithErrorHandler receives accept failures that the serve loop recovered from.
func WithErrorHandler(handler E.Handler) Option {
	return func(s *Server) {
		s.errorHandler = handler
	}
}

// WithContext sets the base context of every request.
func WithContext(ctx context.Context) Option {
	return func(s *Server) {
		s.ctx = ctx
	}
}

func NewServer(handler http.Handler, executor N.Executor, options ...Option) *Server {
	server := &Server{
		ctx:       context.Background(),
		executor:  executor,
		done:      make(chan struct{}),
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*serverConn]struct{}),
	}
	for _, option := range options {
		option(server)
	}
	h2Server := &http2.Server{}
	server.httpServer = &http.Server{
		Handler: h2c.NewHandler(handler, h2Server),
		BaseContext: func(net.Listener) context.Context {
			return server.ctx
		},
		ConnContext: func(ctx context.Context, conn net.Conn) context.Context {
			if connectedConn, isConnected := conn.(N.ConnectedConn); isConnected {
				return N.ContextWithConnected(ctx, connectedConn.Connected())
			}
			return ctx
		},
	}
	// registers h2Server for graceful shutdown of upgraded connections
	http2.ConfigureServer(server.httpServer, h2Server)
	return server
}

// Serve accepts connections from listener until it is closed, submitting one
// task per connection to the executor. Temporary accept errors are retried
// with backoff. It always returns a non-nil error, http.ErrServerClosed once
// the listener reached its end or the server was shut down.
func (s *Server) Serve(listener net.Listener) error {
	if !s.trackListener(listener, true) {
		return http.ErrServerClosed
	}
	defer s.trackListener(listener, false)

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return http.ErrServerClosed
			}
			var temporary interface{ Temporary() bool }
			if errors.As(err, &temporary) && temporary.Temporary() {
				if delay == 0 {
					delay = minAcceptDelay
				} else {
					delay *= 2
				}
				if delay > maxAcceptDelay {
					delay = maxAcceptDelay
				}
				s.newError(E.Cause(err, "accept (retrying in ", delay, ")"))
				select {
				case <-time.After(delay):
					continue
				case <-s.done:
					return http.ErrServerClosed
				}
			}
			if errors.Is(err, net.ErrClosed) {
				return http.ErrServerClosed
			}
			return E.Cause(err, "accept")
		}
		delay = 0
		s.executor.Execute(func() error {
			return s.serveConn(conn)
		})
	}
}

func (s *Server) serveConn(conn net.Conn) error {
	sc := newServerConn(conn)
	if !s.trackConn(sc, true) {
		conn.Close()
		return nil
	}
	defer s.trackConn(sc, false)

	listener := newConnListener(sc)
	err := s.httpServer.Serve(listener)
	if !listener.accepted.Load() {
		sc.Close()
	}
	<-sc.done
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return E.Cause(err, "serve ", conn.RemoteAddr())
}

// Shutdown stops accepting and waits for active connections to finish their
// current request, or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.startShutdown()
	return s.httpServer.Shutdown(ctx)
}

// Close stops accepting and closes every connection immediately, including
// hijacked ones.
func (s *Server) Close() error {
	s.startShutdown()
	err := s.httpServer.Close()
	s.access.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.access.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
	return err
}

func (s *Server) startShutdown() {
	s.inShutdown.Store(true)
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.access.Lock()
	listeners := make([]net.Listener, 0, len(s.listeners))
	for listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.access.Unlock()
	for _, listener := range listeners {
		listener.Close()
	}
}

func (s *Server) trackListener(listener net.Listener, add bool) bool {
	s.access.Lock()
	defer s.access.Unlock()
	if add {
		if s.inShutdown.Load() {
			return false
		}
		s.listeners[listener] = struct{}{}
	} else {
		delete(s.listeners, listener)
	}
	return true
}

func (s *Server) trackConn(conn *serverConn, add bool) bool {
	s.access.Lock()
	defer s.access.Unlock()
	if add {
		if s.inShutdown.Load() {
			return false
		}
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
	return true
}

func (s *Server) newError(err error) {
	if s.errorHandler != nil {
		s.errorHandler.NewError(s.ctx, err)
	}
}
