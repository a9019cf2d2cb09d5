//go:build linux

package reactor

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"

	"golang.org/x/sys/unix"
)

// Reactor is an epoll based readiness reactor.
//
// Registrations are one-shot: once a direction of a file descriptor reports
// readiness its handler is dropped and has to be added again. Interest is
// level-triggered, so registering a descriptor that is already ready wakes the
// handler on the next poll round. Spurious wakeups are possible and callers
// are expected to retry the operation that would have blocked.
type Reactor struct {
	ctx              context.Context
	cancel           context.CancelFunc
	stopContextWatch func() bool
	epollFD          int
	mutex            sync.Mutex
	entries          map[int]*fdEntry
	running          bool
	closed           atomic.Bool
	wg               sync.WaitGroup
	pipeFDs          [2]int
}

func New(ctx context.Context) (*Reactor, error) {
	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	var pipeFDs [2]int
	err = unix.Pipe2(pipeFDs[:], unix.O_NONBLOCK|unix.O_CLOEXEC)
	if err != nil {
		unix.Close(epollFD)
		return nil, os.NewSyscallError("pipe2", err)
	}

	err = unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, pipeFDs[0], &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(pipeFDs[0]),
	})
	if err != nil {
		unix.Close(pipeFDs[0])
		unix.Close(pipeFDs[1])
		unix.Close(epollFD)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	reactor := &Reactor{
		ctx:     ctx,
		cancel:  cancel,
		epollFD: epollFD,
		entries: make(map[int]*fdEntry),
		pipeFDs: pipeFDs,
	}
	reactor.stopContextWatch = context.AfterFunc(ctx, func() {
		reactor.Close()
	})
	return reactor, nil
}

func epollEvents(interest Interest) uint32 {
	var events uint32
	if interest&InterestRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

// Add arms handler for the given direction of fd, replacing any handler
// already armed for it.
func (r *Reactor) Add(handler FDHandler, fd int, interest Interest) error {
	if handler == nil || interest == 0 {
		return E.New("reactor: empty registration for fd ", fd)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed.Load() {
		return ErrClosed
	}

	entry, loaded := r.entries[fd]
	if !loaded {
		entry = &fdEntry{fd: fd}
	}
	previous := *entry
	entry.set(interest, handler)

	operation := unix.EPOLL_CTL_MOD
	if !loaded {
		operation = unix.EPOLL_CTL_ADD
	}
	err := unix.EpollCtl(r.epollFD, operation, fd, &unix.EpollEvent{
		Events: epollEvents(entry.interest()),
		Fd:     int32(fd),
	})
	if err != nil {
		*entry = previous
		return os.NewSyscallError("epoll_ctl", err)
	}
	if !loaded {
		r.entries[fd] = entry
	}

	if !r.running {
		r.running = true
		r.wg.Add(1)
		go r.run()
	}
	return nil
}

// Remove drops every registration of fd and wakes the handlers that were
// still waiting, so they can observe that the descriptor is gone.
func (r *Reactor) Remove(fd int) {
	r.mutex.Lock()
	entry, ok := r.entries[fd]
	if !ok {
		r.mutex.Unlock()
		return
	}
	unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
	delete(r.entries, fd)
	handlers := entry.take(InterestRead | InterestWrite)
	r.mutex.Unlock()

	fire(handlers)
}

func (r *Reactor) wakeup() {
	unix.Write(r.pipeFDs[1], []byte{0})
}

func (r *Reactor) Close() error {
	r.mutex.Lock()
	if r.closed.Swap(true) {
		r.mutex.Unlock()
		return nil
	}
	r.mutex.Unlock()

	r.stopContextWatch()
	r.cancel()
	r.wakeup()
	r.wg.Wait()

	r.mutex.Lock()
	var handlers []FDHandler
	for fd, entry := range r.entries {
		handlers = append(handlers, entry.take(InterestRead|InterestWrite)...)
		delete(r.entries, fd)
	}
	unix.Close(r.epollFD)
	unix.Close(r.pipeFDs[0])
	unix.Close(r.pipeFDs[1])
	r.mutex.Unlock()

	fire(handlers)
	return nil
}

// rearm narrows the epoll interest of entry to the slots that are still armed.
// Must be called with the mutex held.
func (r *Reactor) rearm(entry *fdEntry) {
	interest := entry.interest()
	if interest == 0 {
		unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_DEL, entry.fd, nil)
		delete(r.entries, entry.fd)
		return
	}
	unix.EpollCtl(r.epollFD, unix.EPOLL_CTL_MOD, entry.fd, &unix.EpollEvent{
		Events: epollEvents(interest),
		Fd:     int32(entry.fd),
	})
}

func (r *Reactor) run() {
	defer r.wg.Done()

	events := make([]unix.EpollEvent, 64)
	var buffer [1]byte

	for {
		select {
		case <-r.ctx.Done():
			r.mutex.Lock()
			r.running = false
			r.mutex.Unlock()
			return
		default:
		}

		n, err := unix.EpollWait(r.epollFD, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			r.mutex.Lock()
			r.running = false
			r.mutex.Unlock()
			return
		}

		for i := 0; i < n; i++ {
			event := events[i]
			fd := int(event.Fd)

			if fd == r.pipeFDs[0] {
				unix.Read(r.pipeFDs[0], buffer[:])
				continue
			}

			var ready Interest
			if event.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				ready |= InterestRead
			}
			if event.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				ready |= InterestWrite
			}

			r.mutex.Lock()
			entry, ok := r.entries[fd]
			if !ok {
				r.mutex.Unlock()
				continue
			}
			handlers := entry.take(ready)
			r.rearm(entry)
			r.mutex.Unlock()

			fire(handlers)
		}

		r.mutex.Lock()
		if len(r.entries) == 0 {
			r.running = false
			r.mutex.Unlock()
			return
		}
		r.mutex.Unlock()
	}
}
