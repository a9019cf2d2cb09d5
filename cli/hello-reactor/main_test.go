//go:build linux || darwin

package main

import (
	"context"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/fundon/smol-tokio-hyper-benchmarks/adapter"
	"github.com/fundon/smol-tokio-hyper-benchmarks/common/aio"
	"github.com/fundon/smol-tokio-hyper-benchmarks/common/reactor"
	H "github.com/fundon/smol-tokio-hyper-benchmarks/protocol/http"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newAcceptor(t *testing.T) *adapter.Acceptor {
	t.Helper()
	r, err := reactor.New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	listener, err := aio.Listen(r, netip.MustParseAddrPort("127.0.0.1:0"))
	require.NoError(t, err)
	return adapter.NewAcceptor(listener)
}

func serveAsync(ctx context.Context, acceptor *adapter.Acceptor) chan error {
	logger, _ := test.NewNullLogger()
	server := H.NewServer(http.HandlerFunc(hello), adapter.NewExecutor(ctx))
	result := make(chan error, 1)
	go func() {
		result <- serve(ctx, logger, server, acceptor, nil)
	}()
	return result
}

func TestServeListenerGone(t *testing.T) {
	t.Parallel()
	acceptor := newAcceptor(t)
	result := serveAsync(context.Background(), acceptor)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, acceptor.Close())

	select {
	case err := <-result:
		require.ErrorIs(t, err, errListenerGone)
	case <-time.After(5 * time.Second):
		t.Fatal("serve kept running without a listener")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	result := serveAsync(ctx, newAcceptor(t))
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
