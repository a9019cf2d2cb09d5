package adapter

import (
	"context"
	"sync"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
	N "github.com/fundon/smol-tokio-hyper-benchmarks/common/network"
)

var _ N.Executor = (*Executor)(nil)

// Executor runs every submitted task on its own goroutine.
//
// The submitter never sees the result of a task. Errors and recovered panics
// are counted and handed to the error handler, if one was configured.
type Executor struct {
	ctx     context.Context
	handler E.Handler
	metrics *Metrics
	wg      sync.WaitGroup
}

// NewExecutor creates an executor. ctx is passed to the error handler.
func NewExecutor(ctx context.Context, options ...Option) *Executor {
	o := newOptions(options)
	return &Executor{
		ctx:     ctx,
		handler: o.errorHandler,
		metrics: o.metrics,
	}
}

// Execute starts task and returns immediately.
func (e *Executor) Execute(task func() error) {
	e.metrics.taskStarted()
	e.wg.Add(1)
	go e.run(task)
}

func (e *Executor) run(task func() error) {
	defer e.wg.Done()
	err := call(task)
	e.metrics.taskFinished(err != nil)
	if err != nil && e.handler != nil {
		e.handler.NewError(e.ctx, err)
	}
}

func call(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = E.New("task panicked: ", r)
		}
	}()
	return task()
}

// Wait blocks until every task started so far has returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}
