package adapter

import E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"

type options struct {
	metrics      *Metrics
	errorHandler E.Handler
}

type Option func(*options)

// WithMetrics records executor and acceptor activity into metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithErrorHandler receives the failures of detached tasks.
func WithErrorHandler(handler E.Handler) Option {
	return func(o *options) {
		o.errorHandler = handler
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
