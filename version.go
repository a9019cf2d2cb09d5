// Package bridge serves net/http over a readiness reactor: adapter turns the
// reactor sockets of common/aio into the executor, listener and connection
// shapes net/http expects, and protocol/http runs the serve loop on top.
package bridge

const Version = "0.1.0"
