package isolate

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/isolates/alloc"
	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/inspect"
)

// Isolate is the user-facing handle to one environment.
type Isolate struct {
	holder *Holder
}

// New creates an environment, starts its goroutine and sets up the default
// top-level scope. The caller must eventually call Dispose; environments
// are not garbage collected.
func New(ctx context.Context, eng engine.Engine, opts Options) (*Isolate, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	limit := opts.MemoryLimitMB << 20

	// The allocator charges engine-held memory (compiled code) against the
	// same budget as reserved heap pages. The heap does not exist yet, so
	// the statistics callback closes over the variable.
	var heap engine.Heap
	allocator := alloc.NewLimited(limit, func() uint64 {
		if heap == nil {
			return 0
		}
		return heap.Statistics().CodeSize
	})

	heap, err = eng.NewHeap(ctx, engine.HeapConfig{
		MemoryLimit: limit,
		Allocator:   allocator,
		Image:       opts.Snapshot,
	})
	if err != nil {
		return nil, err
	}

	var agent *inspect.Agent
	if opts.EnableInspector {
		agent = inspect.NewAgent()
	}

	env := newEnvironment(heap, allocator, agent)
	holder := newHolder(env)
	go env.loop()

	// The default scope must be created on the owning goroutine like any
	// other heap access.
	_, err = Call(ctx, holder, func(ctx context.Context, env *Environment) (struct{}, error) {
		scope, err := env.heap.NewScope(ctx)
		if err != nil {
			return struct{}{}, err
		}
		env.defaultScope = scope
		return struct{}{}, nil
	})
	if err != nil {
		env.dispose()
		return nil, err
	}

	Logger().Debug("isolate created",
		zap.String("environment", env.id),
		zap.Uint64("memory_limit_mb", opts.MemoryLimitMB),
		zap.Bool("inspector", agent != nil))
	return &Isolate{holder: holder}, nil
}

// ID returns the environment's unique identifier.
func (i *Isolate) ID() string {
	return i.holder.env.id
}

// IsDisposed reports whether Dispose has been called.
func (i *Isolate) IsDisposed() bool {
	return i.holder.env.isDisposed()
}

// Dispose shuts the environment down. Tasks already queued but not started
// fail with environment_gone; handle teardown still runs; the heap is then
// reclaimed on the environment goroutine. Dispose returns without waiting
// for the drain and is safe to call more than once.
func (i *Isolate) Dispose() {
	i.holder.env.dispose()
}

// Terminated is closed once the environment goroutine has drained its queue
// and reclaimed the heap.
func (i *Isolate) Terminated() <-chan struct{} {
	return i.holder.env.done
}

// HeapStatistics reports current heap usage.
func (i *Isolate) HeapStatistics(ctx context.Context) (engine.Statistics, error) {
	return Call(ctx, i.holder, heapStatistics)
}

// HeapStatisticsAsync is the non-blocking form of HeapStatistics.
func (i *Isolate) HeapStatisticsAsync() *Future[engine.Statistics] {
	return Submit(i.holder, heapStatistics)
}

func heapStatistics(ctx context.Context, env *Environment) (engine.Statistics, error) {
	return env.heap.Statistics(), nil
}
