package isolate

import (
	"context"

	"github.com/wippyai/isolates/errors"
)

// Submit schedules fn onto the holder's environment and returns a pending
// result. The returned future resolves with environment_gone when the
// environment has been disposed before fn gets to run.
func Submit[R any](h *Holder, fn func(ctx context.Context, env *Environment) (R, error)) *Future[R] {
	f := newFuture[R]()
	var zero R

	env := h.upgrade()
	if env == nil {
		f.resolve(zero, errors.EnvironmentGone(errors.PhaseSchedule))
		return f
	}

	t := &queuedTask{
		execute: func(ctx context.Context) {
			v, err := fn(ctx, env)
			f.resolve(v, err)
		},
		fail: func(err error) {
			f.resolve(zero, err)
		},
	}
	if err := env.schedule(t, scheduleOptions{}); err != nil {
		f.resolve(zero, err)
	}
	return f
}

// Call runs fn on the holder's environment and blocks until the result is
// delivered. When the caller is already executing on that environment the
// work runs inline instead of deadlocking against its own queue.
func Call[R any](ctx context.Context, h *Holder, fn func(ctx context.Context, env *Environment) (R, error)) (R, error) {
	if env := h.upgrade(); env != nil && fromContext(ctx) == env {
		if env.isDisposed() {
			var zero R
			return zero, errors.EnvironmentGone(errors.PhaseSchedule)
		}
		return fn(ctx, env)
	}
	return Submit(h, fn).Await(ctx)
}
