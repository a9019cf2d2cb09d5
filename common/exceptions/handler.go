package exceptions

import "context"

// Handler receives errors that have no caller left to return them to.
type Handler interface {
	NewError(ctx context.Context, err error)
}

type HandlerFunc func(ctx context.Context, err error)

func (f HandlerFunc) NewError(ctx context.Context, err error) {
	f(ctx, err)
}
