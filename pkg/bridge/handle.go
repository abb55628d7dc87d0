package bridge

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed is returned for submissions after the loop stopped.
	ErrClosed = errors.New("bridge: loop closed")

	// ErrTimeout is returned by Await when the deadline passes first.
	ErrTimeout = errors.New("bridge: await timed out")

	// ErrDelivery wraps a failed connection write.
	ErrDelivery = errors.New("bridge: delivery failed")
)

// Handle is the pending result of a Send or Schedule call.
type Handle struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func failed(err error) *Handle {
	h := newHandle()
	h.resolve(nil, err)
	return h
}

func (h *Handle) resolve(v any, err error) {
	h.once.Do(func() {
		h.val = v
		h.err = err
		close(h.done)
	})
}

// Done is closed once the handle has a result.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the result error without blocking. It is nil while pending.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Await blocks until the result is ready or timeout elapses. A
// non-positive timeout waits indefinitely.
func (h *Handle) Await(timeout time.Duration) (any, error) {
	if timeout <= 0 {
		<-h.done
		return h.val, h.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.val, h.err
	case <-timer.C:
		return nil, ErrTimeout
	}
}
