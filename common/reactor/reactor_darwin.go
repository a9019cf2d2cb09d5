//go:build darwin

package reactor

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"

	"golang.org/x/sys/unix"
)

// Reactor is a kqueue based readiness reactor.
//
// Every armed direction is an EV_ONESHOT filter, so kqueue drops it on its own
// once it fires. Spurious wakeups are possible and callers are expected to
// retry the operation that would have blocked.
type Reactor struct {
	ctx              context.Context
	cancel           context.CancelFunc
	stopContextWatch func() bool
	kqueueFD         int
	mutex            sync.Mutex
	entries          map[int]*fdEntry
	running          bool
	closed           atomic.Bool
	wg               sync.WaitGroup
	pipeFDs          [2]int
}

func New(ctx context.Context) (*Reactor, error) {
	kqueueFD, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(kqueueFD)

	var pipeFDs [2]int
	err = unix.Pipe(pipeFDs[:])
	if err != nil {
		unix.Close(kqueueFD)
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range pipeFDs {
		unix.CloseOnExec(fd)
		err = unix.SetNonblock(fd, true)
		if err != nil {
			unix.Close(pipeFDs[0])
			unix.Close(pipeFDs[1])
			unix.Close(kqueueFD)
			return nil, os.NewSyscallError("setnonblock", err)
		}
	}

	var pipeEvent unix.Kevent_t
	unix.SetKevent(&pipeEvent, pipeFDs[0], unix.EVFILT_READ, unix.EV_ADD)
	_, err = unix.Kevent(kqueueFD, []unix.Kevent_t{pipeEvent}, nil, nil)
	if err != nil {
		unix.Close(pipeFDs[0])
		unix.Close(pipeFDs[1])
		unix.Close(kqueueFD)
		return nil, os.NewSyscallError("kevent", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	reactor := &Reactor{
		ctx:      ctx,
		cancel:   cancel,
		kqueueFD: kqueueFD,
		entries:  make(map[int]*fdEntry),
		pipeFDs:  pipeFDs,
	}
	reactor.stopContextWatch = context.AfterFunc(ctx, func() {
		reactor.Close()
	})
	return reactor, nil
}

func kevents(fd int, interest Interest, flags int) []unix.Kevent_t {
	var changes []unix.Kevent_t
	if interest&InterestRead != 0 {
		var event unix.Kevent_t
		unix.SetKevent(&event, fd, unix.EVFILT_READ, flags)
		changes = append(changes, event)
	}
	if interest&InterestWrite != 0 {
		var event unix.Kevent_t
		unix.SetKevent(&event, fd, unix.EVFILT_WRITE, flags)
		changes = append(changes, event)
	}
	return changes
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

	_, err := unix.Kevent(r.kqueueFD, kevents(fd, interest, unix.EV_ADD|unix.EV_ONESHOT), nil, nil)
	if err != nil {
		return os.NewSyscallError("kevent", err)
	}

	entry, loaded := r.entries[fd]
	if !loaded {
		entry = &fdEntry{fd: fd}
		r.entries[fd] = entry
	}
	entry.set(interest, handler)

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
	unix.Kevent(r.kqueueFD, kevents(fd, entry.interest(), unix.EV_DELETE), nil, nil)
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
	unix.Close(r.kqueueFD)
	unix.Close(r.pipeFDs[0])
	unix.Close(r.pipeFDs[1])
	r.mutex.Unlock()

	fire(handlers)
	return nil
}

func (r *Reactor) run() {
	defer r.wg.Done()

	events := make([]unix.Kevent_t, 64)
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

		n, err := unix.Kevent(r.kqueueFD, nil, events, nil)
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
			fd := int(event.Ident)

			if fd == r.pipeFDs[0] {
				unix.Read(r.pipeFDs[0], buffer[:])
				continue
			}

			var ready Interest
			switch event.Filter {
			case unix.EVFILT_READ:
				ready = InterestRead
			case unix.EVFILT_WRITE:
				ready = InterestWrite
			default:
				continue
			}

			r.mutex.Lock()
			entry, ok := r.entries[fd]
			if !ok {
				r.mutex.Unlock()
				continue
			}
			handlers := entry.take(ready)
			if entry.interest() == 0 {
				delete(r.entries, fd)
			}
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
