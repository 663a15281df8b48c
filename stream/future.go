package stream

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Future is the handle to one outstanding exchange. It settles at most once,
// either with the reply payload or with a failure.
type Future struct {
	done    chan struct{}
	once    sync.Once
	payload []byte
	err     error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Failed returns a Future already settled with err.
func Failed(err error) *Future {
	f := NewFuture()
	f.Fail(err)
	return f
}

// Resolve settles the Future with payload. It reports false if the Future had
// already settled.
func (f *Future) Resolve(payload []byte) bool {
	settled := false
	f.once.Do(func() {
		f.payload = slices.Clone(payload)
		close(f.done)
		settled = true
	})
	return settled
}

// Fail settles the Future with err. It reports false if the Future had
// already settled.
func (f *Future) Fail(err error) bool {
	if err == nil {
		err = errors.New("exchange failed without a cause")
	}
	settled := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the Future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the Future settles, ctx ends, or timeout elapses.
// The returned error wraps ErrTimeout, ErrInterrupted, or is an
// *ExecutionError carrying the failure the Future settled with. Awaiting a
// Future again after a timeout keeps waiting on the same exchange.
func (f *Future) Await(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case <-f.done:
		return f.result()
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.result()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

func (f *Future) result() ([]byte, error) {
	if f.err != nil {
		return nil, &ExecutionError{Err: f.err}
	}
	return slices.Clone(f.payload), nil
}
