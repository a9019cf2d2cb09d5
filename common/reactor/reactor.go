// Package reactor watches file descriptors for readiness and wakes one-shot handlers.
package reactor

import (
	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"
)

// Interest selects which direction of a file descriptor a handler waits for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

func (i Interest) String() string {
	switch i {
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	case InterestRead | InterestWrite:
		return "read|write"
	default:
		return "none"
	}
}

// FDHandler is woken once when the registered direction becomes ready.
// HandleFDEvent is called on the poll goroutine and must not block.
type FDHandler interface {
	HandleFDEvent()
}

type fdEntry struct {
	fd    int
	read  FDHandler
	write FDHandler
}

func (e *fdEntry) interest() Interest {
	var interest Interest
	if e.read != nil {
		interest |= InterestRead
	}
	if e.write != nil {
		interest |= InterestWrite
	}
	return interest
}

func (e *fdEntry) set(interest Interest, handler FDHandler) {
	if interest&InterestRead != 0 {
		e.read = handler
	}
	if interest&InterestWrite != 0 {
		e.write = handler
	}
}

// take clears the slots selected by interest and returns their handlers.
// A handler armed for both directions is returned once per direction.
func (e *fdEntry) take(interest Interest) []FDHandler {
	var handlers []FDHandler
	if interest&InterestRead != 0 && e.read != nil {
		handlers = append(handlers, e.read)
		e.read = nil
	}
	if interest&InterestWrite != 0 && e.write != nil {
		handlers = append(handlers, e.write)
		e.write = nil
	}
	return handlers
}

func fire(handlers []FDHandler) {
	for _, handler := range handlers {
		handler.HandleFDEvent()
	}
}

var ErrClosed = E.New("reactor closed")
