package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fundon/smol-tokio-hyper-benchmarks/adapter"
	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
	N "github.com/fundon/smol-tokio-hyper-benchmarks/common/network"

	"github.com/stretchr/testify/require"
)

var helloHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "Hello world!")
})

type temporaryError struct{}

func (temporaryError) Error() string   { return "too many open files" }
func (temporaryError) Timeout() bool   { return false }
func (temporaryError) Temporary() bool { return true }

// scriptedListener returns queued results from Accept, then net.ErrClosed.
type scriptedListener struct {
	results chan any
	closed  chan struct{}
	once    sync.Once
}

func newScriptedListener(results ...any) *scriptedListener {
	listener := &scriptedListener{results: make(chan any, len(results)), closed: make(chan struct{})}
	for _, result := range results {
		listener.results <- result
	}
	return listener
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	select {
	case result := <-l.results:
		if conn, isConn := result.(net.Conn); isConn {
			return conn, nil
		}
		return nil, result.(error)
	default:
	}
	<-l.closed
	return nil, net.ErrClosed
}

func (l *scriptedListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8000}
}

type errorRecorder struct {
	access sync.Mutex
	errors []error
}

func (r *errorRecorder) NewError(ctx context.Context, err error) {
	r.access.Lock()
	defer r.access.Unlock()
	r.errors = append(r.errors, err)
}

func (r *errorRecorder) Len() int {
	r.access.Lock()
	defer r.access.Unlock()
	return len(r.errors)
}

func TestServeRetriesTemporaryErrors(t *testing.T) {
	t.Parallel()
	client, serverSide := net.Pipe()
	defer client.Close()
	listener := newScriptedListener(temporaryError{}, temporaryError{}, serverSide)

	recorder := &errorRecorder{}
	executor := adapter.NewExecutor(context.Background())
	server := NewServer(helloHandler, executor, WithErrorHandler(recorder))

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(listener)
	}()

	_, err := io.WriteString(client, "GET / HTTP/1.1\r\nHost: bridge\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)
	response, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	require.Equal(t, "Hello world!", string(body))
	require.Equal(t, 2, recorder.Len())

	listener.Close()
	select {
	case err = <-serveDone:
		require.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return at end of sequence")
	}
	executor.Wait()
}

func TestServeFatalAcceptError(t *testing.T) {
	t.Parallel()
	cause := E.New("listener broken")
	server := NewServer(helloHandler, adapter.NewExecutor(context.Background()))
	err := server.Serve(newScriptedListener(cause))
	require.ErrorIs(t, err, cause)
	require.False(t, errors.Is(err, http.ErrServerClosed))
}

func TestServeAfterShutdown(t *testing.T) {
	t.Parallel()
	server := NewServer(helloHandler, adapter.NewExecutor(context.Background()))
	require.NoError(t, server.Shutdown(context.Background()))
	require.ErrorIs(t, server.Serve(newScriptedListener()), http.ErrServerClosed)
}

func TestShutdownStopsServe(t *testing.T) {
	t.Parallel()
	server := NewServer(helloHandler, adapter.NewExecutor(context.Background()))
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(newScriptedListener())
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.Shutdown(context.Background()))
	select {
	case err := <-serveDone:
		require.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not stop Serve")
	}
}

func TestConnectedInRequestContext(t *testing.T) {
	t.Parallel()
	client, serverSide := net.Pipe()
	defer client.Close()

	remotes := make(chan net.Addr, 1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connected, loaded := N.ConnectedFromContext(r.Context())
		if loaded {
			remotes <- connected.Remote
		}
		w.WriteHeader(http.StatusNoContent)
	})
	executor := adapter.NewExecutor(context.Background())
	server := NewServer(handler, executor)
	listener := newScriptedListener(serverSide)
	go server.Serve(listener)

	_, err := io.WriteString(client, "GET / HTTP/1.1\r\nHost: bridge\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)
	response, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, response.StatusCode)
	require.Equal(t, serverSide.RemoteAddr(), <-remotes)

	require.NoError(t, server.Close())
	executor.Wait()
}

func TestConnListenerYieldsOnce(t *testing.T) {
	t.Parallel()
	left, right := net.Pipe()
	defer right.Close()
	conn := newServerConn(left)
	listener := newConnListener(conn)

	accepted, err := listener.Accept()
	require.NoError(t, err)
	require.Same(t, conn, accepted)

	result := make(chan error, 1)
	go func() {
		_, err := listener.Accept()
		result <- err
	}()
	select {
	case <-result:
		t.Fatal("Accept returned while the connection is open")
	case <-time.After(20 * time.Millisecond):
	}
	require.NoError(t, conn.Close())
	require.ErrorIs(t, <-result, net.ErrClosed)
	require.NoError(t, listener.Close())
	require.NoError(t, listener.Close())
}
