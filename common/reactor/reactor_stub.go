//go:build !linux && !darwin

package reactor

import (
	"context"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
)

type Reactor struct{}

func New(ctx context.Context) (*Reactor, error) {
	return nil, E.New("reactor not supported on this platform")
}

func (r *Reactor) Add(handler FDHandler, fd int, interest Interest) error {
	return E.New("reactor not supported on this platform")
}

func (r *Reactor) Remove(fd int) {}

func (r *Reactor) Close() error {
	return nil
}
