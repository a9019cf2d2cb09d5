//go:build linux || darwin

package adapter

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/fundon/smol-tokio-hyper-benchmarks/common/aio"

	"github.com/stretchr/testify/require"
)

func newStreamPair(t *testing.T) (client *Stream, server *Stream) {
	t.Helper()
	r, acceptor := newTestAcceptor(t)
	client = NewStream(dial(t, r, acceptor))
	server, err := acceptor.Next()
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

type readResult struct {
	n   int
	err error
}

func readAsync(stream *Stream, p []byte) chan readResult {
	result := make(chan readResult, 1)
	go func() {
		n, err := stream.Read(p)
		result <- readResult{n, err}
	}()
	return result
}

func TestStreamReadSuspendsAndResumes(t *testing.T) {
	t.Parallel()
	client, server := newStreamPair(t)

	buffer := make([]byte, 64)
	result := readAsync(server, buffer)
	select {
	case <-result:
		t.Fatal("Read returned before data arrived")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := client.Write([]byte("Hello"))
	require.NoError(t, err)
	select {
	case r := <-result:
		require.NoError(t, r.err)
		require.Equal(t, "Hello", string(buffer[:r.n]))
	case <-time.After(5 * time.Second):
		t.Fatal("Read not resumed")
	}

	require.NoError(t, client.CloseWrite())
	n, err := server.Read(buffer)
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)
}

func TestStreamCloseWriteKeepsReading(t *testing.T) {
	t.Parallel()
	client, server := newStreamPair(t)

	require.NoError(t, server.Shutdown())
	_, err := client.Write([]byte("still readable"))
	require.NoError(t, err)

	buffer := make([]byte, 64)
	n, err := server.Read(buffer)
	require.NoError(t, err)
	require.Equal(t, "still readable", string(buffer[:n]))

	n, err = client.Read(buffer)
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)
}

func TestStreamCloseReadKeepsWriting(t *testing.T) {
	t.Parallel()
	client, server := newStreamPair(t)

	require.NoError(t, server.CloseRead())
	buffer := make([]byte, 64)
	n, err := server.Read(buffer)
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)

	_, err = server.Write([]byte("still writable"))
	require.NoError(t, err)
	n, err = client.Read(buffer)
	require.NoError(t, err)
	require.Equal(t, "still writable", string(buffer[:n]))
}

func TestStreamDeadlineAbortsRead(t *testing.T) {
	t.Parallel()
	client, server := newStreamPair(t)

	buffer := make([]byte, 64)
	result := readAsync(server, buffer)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.SetReadDeadline(time.Unix(1, 0)))
	select {
	case r := <-result:
		netError, isNetError := r.err.(net.Error)
		require.True(t, isNetError)
		require.True(t, netError.Timeout())
	case <-time.After(5 * time.Second):
		t.Fatal("deadline did not abort Read")
	}

	require.NoError(t, server.SetReadDeadline(time.Time{}))
	_, err := client.Write([]byte("after"))
	require.NoError(t, err)
	n, err := server.Read(buffer)
	require.NoError(t, err)
	require.Equal(t, "after", string(buffer[:n]))
}

func TestStreamCloseWakesRead(t *testing.T) {
	t.Parallel()
	_, server := newStreamPair(t)

	result := readAsync(server, make([]byte, 8))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.Close())
	select {
	case r := <-result:
		require.ErrorIs(t, r.err, net.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not wake Read")
	}
	_, err := server.Write([]byte("x"))
	require.ErrorIs(t, err, net.ErrClosed)
}

func TestStreamWriteSuspendsOnFullBuffer(t *testing.T) {
	t.Parallel()
	client, server := newStreamPair(t)
	require.NoError(t, client.conn.(*aio.Conn).SetWriteBuffer(4096))
	require.NoError(t, server.conn.(*aio.Conn).SetReadBuffer(4096))

	payload := make([]byte, 256<<10)
	for i := range payload {
		payload[i] = byte(i)
	}
	written := make(chan error, 1)
	go func() {
		_, err := client.Write(payload)
		if err == nil {
			err = client.CloseWrite()
		}
		written <- err
	}()

	received, err := io.ReadAll(server)
	require.NoError(t, err)
	require.NoError(t, <-written)
	require.Equal(t, payload, received)
}

func TestHelloWorldEcho(t *testing.T) {
	t.Parallel()
	r, acceptor := newTestAcceptor(t)
	executor := NewExecutor(context.Background())
	message := "Hello, world!"

	type clientResult struct {
		echo []byte
		err  error
	}
	clientDone := make(chan clientResult, 1)
	executor.Execute(func() error {
		conn, err := aio.Dial(context.Background(), r, acceptor.Addr().(*net.TCPAddr).AddrPort())
		if err != nil {
			clientDone <- clientResult{err: err}
			return err
		}
		client := NewStream(conn)
		defer client.Close()
		_, err = client.Write([]byte(message))
		if err == nil {
			err = client.CloseWrite()
		}
		if err != nil {
			clientDone <- clientResult{err: err}
			return err
		}
		echo, err := io.ReadAll(client)
		clientDone <- clientResult{echo, err}
		return err
	})

	server, err := acceptor.Next()
	require.NoError(t, err)
	defer server.Close()

	request, err := io.ReadAll(server)
	require.NoError(t, err)
	require.Len(t, request, 13)
	require.Equal(t, message, string(request))

	_, err = server.Write(request)
	require.NoError(t, err)
	require.NoError(t, server.CloseWrite())

	result := <-clientDone
	require.NoError(t, result.err)
	require.Equal(t, message, string(result.echo))
	executor.Wait()

	n, err := server.Read(make([]byte, 1))
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)
}
