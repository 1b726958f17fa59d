package isolate

import (
	"context"

	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/transfer"
)

// Script is a refcounted handle to a compiled-but-unbound program. A script
// is tied to the environment that compiled it and may be run any number of
// times against that environment's contexts.
type Script struct {
	holder  *Holder
	program engine.Program
	rc      *refCount

	cachedData         []byte
	cachedDataRejected bool
}

// CompileScript compiles source code into a script. The code and options
// are captured by copy before crossing to the environment goroutine.
func (i *Isolate) CompileScript(ctx context.Context, code []byte, opts ScriptOptions) (*Script, error) {
	return Call(ctx, i.holder, compileScript(i.holder, code, opts))
}

// CompileScriptAsync is the non-blocking form of CompileScript.
func (i *Isolate) CompileScriptAsync(code []byte, opts ScriptOptions) *Future[*Script] {
	return Submit(i.holder, compileScript(i.holder, code, opts))
}

func compileScript(h *Holder, code []byte, opts ScriptOptions) func(ctx context.Context, env *Environment) (*Script, error) {
	// Capture stage: private copies, taken on the caller's side.
	src := engine.Source{
		Code:         append([]byte(nil), code...),
		Filename:     opts.Filename,
		LineOffset:   opts.LineOffset,
		ColumnOffset: opts.ColumnOffset,
	}
	copts := engine.CompileOptions{
		CachedCode:        append([]byte(nil), opts.CachedCode...),
		ProduceCachedCode: opts.ProduceCachedCode,
	}

	return func(ctx context.Context, env *Environment) (*Script, error) {
		program, info, err := env.heap.Compile(ctx, src, copts)
		if err != nil {
			return nil, err
		}
		s := &Script{
			holder:             h,
			program:            program,
			cachedData:         info.CachedCode,
			cachedDataRejected: info.SuppliedCachedCode && info.CachedCodeRejected,
		}
		s.rc = newRefCount(releaseOnOwner(h, func(ctx context.Context) {
			_ = program.Release(ctx)
		}))
		return s, nil
	}
}

// CachedData returns the compilation artifact produced when
// ScriptOptions.ProduceCachedCode was set, or nil.
func (s *Script) CachedData() []byte {
	return append([]byte(nil), s.cachedData...)
}

// CachedDataRejected reports whether a supplied ScriptOptions.CachedCode
// artifact was ignored as stale or mismatched.
func (s *Script) CachedDataRejected() bool {
	return s.cachedDataRejected
}

// AddRef takes an additional reference. It reports false when the handle
// has already been fully released.
func (s *Script) AddRef() bool {
	return s.rc.ref()
}

// Release drops one reference; the last one re-homes program teardown onto
// the owning environment.
func (s *Script) Release() {
	s.rc.deref()
}

// Run executes the script against in's scope and blocks for the result. A
// nil context runs against the isolate's default top-level scope, which
// lives as long as the environment itself. Validation failures surface
// synchronously, before anything is scheduled.
func (s *Script) Run(ctx context.Context, in *Context) (transfer.Value, error) {
	if err := s.runnable(in); err != nil {
		return transfer.Undefined(), err
	}
	return Call(ctx, s.holder, s.runTask(in))
}

// RunAsync is the non-blocking form of Run. Capture-stage validation errors
// resolve the future immediately.
func (s *Script) RunAsync(in *Context) *Future[transfer.Value] {
	if err := s.runnable(in); err != nil {
		f := newFuture[transfer.Value]()
		f.resolve(transfer.Undefined(), err)
		return f
	}
	return Submit(s.holder, s.runTask(in))
}

func (s *Script) runnable(in *Context) error {
	if !s.rc.alive() {
		return errors.InvalidInput("script has been released")
	}
	if in == nil {
		return nil
	}
	if !in.rc.alive() {
		return errors.InvalidInput("context has been released")
	}
	if in.holder != s.holder {
		return errors.InvalidInput("script and context belong to different isolates")
	}
	return nil
}

func (s *Script) runTask(in *Context) func(ctx context.Context, env *Environment) (transfer.Value, error) {
	return func(ctx context.Context, env *Environment) (transfer.Value, error) {
		scope := env.defaultScope
		if in != nil {
			scope = in.scope
		}
		return env.heap.Run(ctx, s.program, scope)
	}
}
