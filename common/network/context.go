package network

import "context"

type connectedKey struct{}

func ContextWithConnected(ctx context.Context, connected Connected) context.Context {
	return context.WithValue(ctx, connectedKey{}, connected)
}

func ConnectedFromContext(ctx context.Context) (Connected, bool) {
	connected, loaded := ctx.Value(connectedKey{}).(Connected)
	return connected, loaded
}
