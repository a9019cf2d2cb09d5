//go:build linux || darwin

package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	bridge "github.com/fundon/smol-tokio-hyper-benchmarks"
	"github.com/fundon/smol-tokio-hyper-benchmarks/adapter"
	"github.com/fundon/smol-tokio-hyper-benchmarks/common/aio"
	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
	"github.com/fundon/smol-tokio-hyper-benchmarks/common/log"
	"github.com/fundon/smol-tokio-hyper-benchmarks/common/reactor"
	H "github.com/fundon/smol-tokio-hyper-benchmarks/protocol/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var errListenerGone = E.New("listener closed unexpectedly")

type flags struct {
	Listen  string
	Metrics string
	Verbose bool
}

func main() {
	f := new(flags)

	command := &cobra.Command{
		Use:     "hello-reactor",
		Short:   "Serve Hello world! over the reactor bridge",
		Version: bridge.Version,
		Run: func(cmd *cobra.Command, args []string) {
			run(f)
		},
	}

	command.Flags().StringVarP(&f.Listen, "listen", "l", "127.0.0.1:8000", "Set the listen address.")
	command.Flags().StringVarP(&f.Metrics, "metrics", "m", "", "Serve Prometheus metrics on this address.")
	command.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose mode.")

	err := command.Execute()
	if err != nil {
		logrus.Fatal(err)
	}
}

func hello(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "Hello world!")
}

func run(f *flags) {
	log.SetVerbose(f.Verbose)
	logger := log.NewLogger("hello-reactor")

	bind, err := netip.ParseAddrPort(f.Listen)
	if err != nil {
		logger.Fatal(E.Cause(err, "parse listen address"))
	}

	r, err := reactor.New(context.Background())
	if err != nil {
		logger.Fatal(E.Cause(err, "create reactor"))
	}
	defer r.Close()

	listener, err := aio.Listen(r, bind)
	if err != nil {
		logger.Fatal(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := adapter.NewMetrics(registry)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errorHandler := log.ErrorHandler(logger)
	executor := adapter.NewExecutor(ctx, adapter.WithMetrics(metrics), adapter.WithErrorHandler(errorHandler))
	acceptor := adapter.NewAcceptor(listener, adapter.WithMetrics(metrics))
	server := H.NewServer(http.HandlerFunc(hello), executor, H.WithErrorHandler(errorHandler))

	var metricsServer *http.Server
	if f.Metrics != "" {
		metricsServer = &http.Server{
			Addr:    f.Metrics,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		}
	}

	err = serve(ctx, logger, server, acceptor, metricsServer)
	server.Close()
	executor.Wait()
	if err != nil {
		logger.Fatal(err)
	}
}

// serve runs the HTTP server and the optional metrics server until ctx is
// done or one of them fails, then shuts both down. A listener that reaches its
// end while ctx is still live is reported as errListenerGone.
func serve(ctx context.Context, logger logrus.FieldLogger, server *H.Server, listener net.Listener, metricsServer *http.Server) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening on http://", listener.Addr())
		err := server.Serve(listener)
		if err == http.ErrServerClosed {
			if groupCtx.Err() != nil {
				return nil
			}
			return errListenerGone
		}
		return err
	})
	if metricsServer != nil {
		group.Go(func() error {
			logger.Info("metrics on http://", metricsServer.Addr, "/metrics")
			err := metricsServer.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return E.Cause(err, "metrics server")
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Debug("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			logger.Warn(E.Cause(err, "graceful shutdown"))
			server.Close()
		}
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx)
		}
		return nil
	})
	return group.Wait()
}
