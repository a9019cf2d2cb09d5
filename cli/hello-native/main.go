package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bridge "github.com/fundon/smol-tokio-hyper-benchmarks"
	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
	"github.com/fundon/smol-tokio-hyper-benchmarks/common/log"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type flags struct {
	Listen  string
	Verbose bool
}

func main() {
	f := new(flags)

	command := &cobra.Command{
		Use:     "hello-native",
		Short:   "Serve Hello world! with net/http on the Go runtime",
		Version: bridge.Version,
		Run: func(cmd *cobra.Command, args []string) {
			run(f)
		},
	}

	command.Flags().StringVarP(&f.Listen, "listen", "l", "127.0.0.1:8001", "Set the listen address.")
	command.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose mode.")

	err := command.Execute()
	if err != nil {
		logrus.Fatal(err)
	}
}

func run(f *flags) {
	log.SetVerbose(f.Verbose)
	logger := log.NewLogger("hello-native")

	server := &http.Server{
		Addr: f.Listen,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "Hello world!")
		}),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening on http://", f.Listen)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Fatal(E.Cause(err, "serve"))
	}
}
