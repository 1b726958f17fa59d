package isolate

import (
	"context"
	"sync"
)

// Future is a pending task result. It is resolved exactly once, on the
// target environment's goroutine for success or failure during execution,
// or immediately at submit time when scheduling is impossible.
type Future[R any] struct {
	done chan struct{}
	once sync.Once
	val  R
	err  error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func (f *Future[R]) resolve(v R, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Done is closed when the result has been delivered.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is delivered or ctx expires. Cancelling the
// wait abandons the result but not the task; it still runs to completion on
// its environment.
func (f *Future[R]) Await(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}
