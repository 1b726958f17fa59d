package isolate

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/transfer"
)

func newTestIsolate(t *testing.T, opts Options) *Isolate {
	t.Helper()
	iso, err := New(context.Background(), stubEngine{}, opts)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() {
		iso.Dispose()
		<-iso.Terminated()
	})
	return iso
}

// fence waits until every task queued before it has executed.
func fence(t *testing.T, iso *Isolate) {
	t.Helper()
	_, err := Call(context.Background(), iso.holder, func(ctx context.Context, env *Environment) (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("fence error: %v", err)
	}
}

func TestNew_MemoryLimitValidation(t *testing.T) {
	_, err := New(context.Background(), stubEngine{}, Options{MemoryLimitMB: 4})
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("limit below minimum: got %v, want invalid_input", err)
	}

	iso := newTestIsolate(t, Options{})
	stats, err := iso.HeapStatistics(context.Background())
	if err != nil {
		t.Fatalf("HeapStatistics error: %v", err)
	}
	if stats.HeapSizeLimit != DefaultMemoryLimitMB<<20 {
		t.Errorf("default limit = %d, want %d", stats.HeapSizeLimit, DefaultMemoryLimitMB<<20)
	}
}

func TestCall_RunsOnEnvironmentGoroutine(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	got, err := Call(context.Background(), iso.holder, func(ctx context.Context, env *Environment) (int, error) {
		if fromContext(ctx) != env {
			t.Error("task context does not carry its environment")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestSubmit_ExecutesInOrder(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	var mu sync.Mutex
	var order []int
	var last *Future[struct{}]
	for i := 0; i < 20; i++ {
		i := i
		last = Submit(iso.holder, func(ctx context.Context, env *Environment) (struct{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return struct{}{}, nil
		})
	}
	if _, err := last.Await(context.Background()); err != nil {
		t.Fatalf("Await error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, tasks ran out of submission order", i, v)
		}
	}
}

// A task that addresses its own environment must run inline; queueing would
// deadlock against the already-busy loop, so returning at all is the proof.
func TestCall_InlineFromOwnEnvironment(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	got, err := Call(context.Background(), iso.holder, func(ctx context.Context, env *Environment) (string, error) {
		return Call(ctx, iso.holder, func(ctx context.Context, env *Environment) (string, error) {
			return "inner", nil
		})
	})
	if err != nil {
		t.Fatalf("nested Call error: %v", err)
	}
	if got != "inner" {
		t.Errorf("got %q", got)
	}
}

func TestDispose_QueuedTasksFailStartedTaskFinishes(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	gate := make(chan struct{})
	started := make(chan struct{})
	first := Submit(iso.holder, func(ctx context.Context, env *Environment) (string, error) {
		close(started)
		<-gate
		return "done", nil
	})
	second := Submit(iso.holder, func(ctx context.Context, env *Environment) (string, error) {
		return "never", nil
	})

	<-started
	iso.Dispose()
	close(gate)

	if v, err := first.Await(context.Background()); err != nil || v != "done" {
		t.Errorf("started task: got (%q, %v), want it to finish", v, err)
	}
	if _, err := second.Await(context.Background()); !errors.IsKind(err, errors.KindEnvironmentGone) {
		t.Errorf("queued task: got %v, want environment_gone", err)
	}
}

func TestDispose_IdempotentAndTerminal(t *testing.T) {
	iso := newTestIsolate(t, Options{})
	heap := iso.holder.env.heap.(*stubHeap)

	iso.Dispose()
	iso.Dispose()
	<-iso.Terminated()

	if !iso.IsDisposed() {
		t.Error("IsDisposed = false after Dispose")
	}
	if !heap.isClosed() {
		t.Error("heap not closed after drain")
	}
	if _, err := iso.HeapStatistics(context.Background()); !errors.IsKind(err, errors.KindEnvironmentGone) {
		t.Errorf("call after dispose: got %v, want environment_gone", err)
	}
	f := Submit(iso.holder, func(ctx context.Context, env *Environment) (struct{}, error) {
		return struct{}{}, nil
	})
	if _, err := f.Await(context.Background()); !errors.IsKind(err, errors.KindEnvironmentGone) {
		t.Errorf("submit after dispose: got %v, want environment_gone", err)
	}
}

func TestContext_ReleaseTearsDownOnEnvironment(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	c, err := iso.CreateContext(context.Background())
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	scope := c.scope.(*stubScope)

	c.Release()
	fence(t, iso)

	if !scope.isReleased() {
		t.Error("scope not released after last handle reference dropped")
	}
}

func TestContext_RefCount(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	c, err := iso.CreateContext(context.Background())
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	scope := c.scope.(*stubScope)

	if !c.AddRef() {
		t.Fatal("AddRef on live handle failed")
	}
	c.Release()
	fence(t, iso)
	if scope.isReleased() {
		t.Fatal("scope released while a reference remains")
	}

	c.Release()
	fence(t, iso)
	if !scope.isReleased() {
		t.Fatal("scope not released after final reference")
	}
	if c.AddRef() {
		t.Error("AddRef revived a fully released handle")
	}
}

func TestContext_ReleaseAfterDisposeIsSilent(t *testing.T) {
	iso := newTestIsolate(t, Options{})
	c, err := iso.CreateContext(context.Background())
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	scope := c.scope.(*stubScope)

	iso.Dispose()
	<-iso.Terminated()

	// The heap already reclaimed the scope; the late release must neither
	// panic nor call into it.
	c.Release()
	time.Sleep(10 * time.Millisecond)
	if scope.isReleased() {
		t.Error("scope.Release ran after the heap was torn down")
	}
}

func TestContext_Globals(t *testing.T) {
	iso := newTestIsolate(t, Options{})
	ctx := context.Background()

	c, err := iso.CreateContext(ctx)
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	defer c.Release()

	if err := c.SetGlobal(ctx, "answer", transfer.Int(42)); err != nil {
		t.Fatalf("SetGlobal error: %v", err)
	}
	v, err := c.Global(ctx, "answer")
	if err != nil {
		t.Fatalf("Global error: %v", err)
	}
	if got, _ := v.AsInt(); got != 42 {
		t.Errorf("answer = %d, want 42", got)
	}

	v, err = c.Global(ctx, "missing")
	if err != nil {
		t.Fatalf("Global(missing) error: %v", err)
	}
	if !v.IsUndefined() {
		t.Errorf("missing global = %v, want undefined", v)
	}

	c.Release()
	fence(t, iso)
	if _, err := c.Global(ctx, "answer"); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("Global on released context: got %v, want invalid_input", err)
	}
}

func TestScript_CompileRunAndCache(t *testing.T) {
	iso := newTestIsolate(t, Options{})
	ctx := context.Background()

	s, err := iso.CompileScript(ctx, []byte("hello"), ScriptOptions{ProduceCachedCode: true})
	if err != nil {
		t.Fatalf("CompileScript error: %v", err)
	}
	defer s.Release()
	blob := s.CachedData()
	if len(blob) == 0 {
		t.Fatal("no cached data produced")
	}

	c, err := iso.CreateContext(ctx)
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	defer c.Release()

	v, err := s.Run(ctx, c)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got, _ := v.AsString(); got != "hello" {
		t.Errorf("result = %q", got)
	}

	s2, err := iso.CompileScript(ctx, []byte("hello"), ScriptOptions{CachedCode: blob})
	if err != nil {
		t.Fatalf("CompileScript with cache error: %v", err)
	}
	defer s2.Release()
	if s2.CachedDataRejected() {
		t.Error("matching cached data was rejected")
	}

	s3, err := iso.CompileScript(ctx, []byte("other"), ScriptOptions{CachedCode: blob})
	if err != nil {
		t.Fatalf("CompileScript with stale cache error: %v", err)
	}
	defer s3.Release()
	if !s3.CachedDataRejected() {
		t.Error("stale cached data was not rejected")
	}
}

func TestScript_RunWithoutContextUsesDefaultScope(t *testing.T) {
	iso := newTestIsolate(t, Options{})
	ctx := context.Background()

	s, err := iso.CompileScript(ctx, []byte("hello"), ScriptOptions{})
	if err != nil {
		t.Fatalf("CompileScript error: %v", err)
	}
	defer s.Release()

	v, err := s.Run(ctx, nil)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got, _ := v.AsString(); got != "hello" {
		t.Errorf("result = %q", got)
	}

	heap := iso.holder.env.heap.(*stubHeap)
	if heap.ranAgainst() != iso.holder.env.defaultScope {
		t.Error("nil-context run did not bind to the default scope")
	}

	if _, err := s.RunAsync(nil).Await(ctx); err != nil {
		t.Errorf("async nil-context run error: %v", err)
	}
}

func TestScript_CompileError(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	_, err := iso.CompileScript(context.Background(), []byte("bad"), ScriptOptions{Filename: "app.src"})
	if !errors.IsKind(err, errors.KindCompile) {
		t.Fatalf("got %v, want compile error", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatal("compile error is not structured")
	}
	if e.Origin.Filename != "app.src" {
		t.Errorf("origin = %q, want app.src", e.Origin.Filename)
	}
}

func TestScript_RunValidation(t *testing.T) {
	iso := newTestIsolate(t, Options{})
	other := newTestIsolate(t, Options{})
	ctx := context.Background()

	s, err := iso.CompileScript(ctx, []byte("hello"), ScriptOptions{})
	if err != nil {
		t.Fatalf("CompileScript error: %v", err)
	}
	c, err := iso.CreateContext(ctx)
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	foreign, err := other.CreateContext(ctx)
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}

	if _, err := s.Run(ctx, foreign); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("cross-isolate run: got %v, want invalid_input", err)
	}
	if _, err := s.RunAsync(foreign).Await(ctx); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("cross-isolate async run: got %v, want invalid_input", err)
	}

	s.Release()
	fence(t, iso)
	if _, err := s.Run(ctx, c); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("run of released script: got %v, want invalid_input", err)
	}
}

func TestScript_ExecutionErrorCarriesOrigin(t *testing.T) {
	iso := newTestIsolate(t, Options{})
	ctx := context.Background()

	s, err := iso.CompileScript(ctx, []byte("trap"), ScriptOptions{Filename: "boom.src", LineOffset: 3})
	if err != nil {
		t.Fatalf("CompileScript error: %v", err)
	}
	defer s.Release()
	c, err := iso.CreateContext(ctx)
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	defer c.Release()

	_, err = s.Run(ctx, c)
	if !errors.IsKind(err, errors.KindExecution) {
		t.Fatalf("got %v, want execution error", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatal("execution error is not structured")
	}
	if e.Origin.Filename != "boom.src" || e.Origin.Line != 3 {
		t.Errorf("origin = %v", e.Origin)
	}
}

func TestFuture_AwaitHonorsContext(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	gate := make(chan struct{})
	f := Submit(iso.holder, func(ctx context.Context, env *Environment) (string, error) {
		<-gate
		return "late", nil
	})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Await(cancelled); err != context.Canceled {
		t.Fatalf("Await on cancelled context: got %v", err)
	}

	// Abandoning the wait did not abandon the task.
	close(gate)
	if v, err := f.Await(context.Background()); err != nil || v != "late" {
		t.Errorf("second Await: got (%q, %v)", v, err)
	}
}

func TestAsyncCreateContext_RacesDisposalCleanly(t *testing.T) {
	iso := newTestIsolate(t, Options{})

	gate := make(chan struct{})
	started := make(chan struct{})
	Submit(iso.holder, func(ctx context.Context, env *Environment) (struct{}, error) {
		close(started)
		<-gate
		return struct{}{}, nil
	})
	f := iso.CreateContextAsync()

	<-started
	iso.Dispose()
	close(gate)

	if _, err := f.Await(context.Background()); !errors.IsKind(err, errors.KindEnvironmentGone) {
		t.Errorf("got %v, want environment_gone", err)
	}
}
