package isolate

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/isolates/alloc"
	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/inspect"
)

// queuedTask is one unit of work addressed to an environment. execute runs
// on the environment goroutine; fail is invoked instead when the task is
// abandoned because the environment is going away.
type queuedTask struct {
	teardown bool
	execute  func(ctx context.Context)
	fail     func(err error)
}

type scheduleOptions struct {
	teardown bool
}

// Environment owns one heap and the single goroutine allowed to touch it.
// All access flows through schedule; the loop drains the queue in FIFO
// order until the environment is disposed and its teardown work has run.
type Environment struct {
	id        string
	heap      engine.Heap
	allocator *alloc.Limited
	agent     *inspect.Agent

	// defaultScope is created on the loop goroutine right after start and
	// only ever touched there.
	defaultScope engine.Scope

	mu         sync.Mutex
	queue      []*queuedTask
	disposed   bool
	terminated bool

	wake chan struct{}
	done chan struct{}
}

func newEnvironment(heap engine.Heap, allocator *alloc.Limited, agent *inspect.Agent) *Environment {
	return &Environment{
		id:        uuid.NewString(),
		heap:      heap,
		allocator: allocator,
		agent:     agent,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// schedule enqueues t for execution on e's goroutine. After disposal only
// teardown tasks are accepted; after termination nothing is, because the
// heap no longer exists.
func (e *Environment) schedule(t *queuedTask, opts scheduleOptions) error {
	t.teardown = opts.teardown

	e.mu.Lock()
	if e.terminated || (e.disposed && !t.teardown) {
		e.mu.Unlock()
		return errors.EnvironmentGone(errors.PhaseSchedule)
	}
	e.queue = append(e.queue, t)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// dispose begins shutdown. Queued non-teardown tasks fail with
// environment_gone, pending teardown still runs, then the heap is closed.
// Safe to call more than once, including from a task on e's own goroutine.
func (e *Environment) dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Environment) isDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// loop is the environment goroutine. It runs until disposal has been
// requested and the queue is fully drained, then reclaims the heap.
func (e *Environment) loop() {
	ctx := withEnvironment(context.Background(), e)

	for {
		t := e.next()
		if t == nil {
			break
		}
		if !t.teardown && e.isDisposed() {
			if t.fail != nil {
				t.fail(errors.EnvironmentGone(errors.PhaseSchedule))
			}
			continue
		}
		t.execute(ctx)
	}

	if e.agent != nil {
		e.agent.Close()
	}
	if err := e.heap.Close(ctx); err != nil {
		Logger().Warn("heap close failed", zap.String("environment", e.id), zap.Error(err))
	}
	Logger().Debug("environment terminated", zap.String("environment", e.id))
	close(e.done)
}

// next blocks until a task is available or shutdown is complete. It returns
// nil exactly once, after disposal with an empty queue, and marks the
// environment terminated under the same lock so schedule can never slip a
// task past the drain.
func (e *Environment) next() *queuedTask {
	for {
		e.mu.Lock()
		if len(e.queue) > 0 {
			t := e.queue[0]
			e.queue = e.queue[1:]
			e.mu.Unlock()
			return t
		}
		if e.disposed {
			e.terminated = true
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()
		<-e.wake
	}
}
