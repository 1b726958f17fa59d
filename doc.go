// Package isolates hosts multiple independent, memory-bounded script
// execution environments inside one process and lets any environment run
// work inside any other.
//
// Each environment owns its own heap, its own byte budget, and a single
// goroutine that is the only place code belonging to that environment may
// execute. Cross-environment operations never reach into a foreign heap
// directly; they go through a capture/execute/deliver task protocol that
// copies inputs into heap-independent form before crossing the boundary
// and copies results back afterwards.
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	isolates/            Root package with the module version constant
//	├── isolate/         Environments, holders, scheduling, the task
//	│                    protocol, and the refcounted resource handles
//	│                    (Context, Script, Session)
//	├── engine/          Narrow interfaces the script engine is consumed
//	│                    through, plus the wazero-backed implementation
//	├── alloc/           Per-environment bounded allocator
//	├── transfer/        Heap-independent tagged values and their codec
//	├── snapshot/        One-shot heap image builder
//	├── inspect/         Debugging agent and session channel
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Create an environment and compile a program in it:
//
//	eng := engine.NewWazeroEngine()
//	defer eng.Close(ctx)
//
//	iso, err := isolate.New(ctx, eng, isolate.Options{MemoryLimitMB: 64})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer iso.Dispose()
//
//	script, err := iso.CompileScript(ctx, code, isolate.ScriptOptions{
//	    Filename: "boot.wasm",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer script.Release()
//
//	ictx, err := iso.CreateContext(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ictx.Release()
//
//	result, err := script.Run(ctx, ictx)
//
// # Thread Safety
//
// Isolate handles are safe for concurrent use from any goroutine; the
// environment behind them executes everything on its own single goroutine.
// Releasing a handle from the "wrong" goroutine is always safe: teardown is
// re-scheduled onto the owning environment rather than run inline.
package isolates
