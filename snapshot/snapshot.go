package snapshot

import (
	"context"

	"github.com/wippyai/isolates/alloc"
	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/isolate"
)

// Script is one setup source for a snapshot.
type Script struct {
	Code         []byte
	Filename     string
	LineOffset   int
	ColumnOffset int
}

// Build compiles and runs scripts inside a fresh disposable heap and returns
// an image of the default scope, usable as isolate.Options.Snapshot. Any
// compile or execution failure aborts the build; the returned error carries
// a heap-independent copy of what the failing script raised.
//
// The builder owns its heap for the whole call and runs on the caller's
// goroutine, so no environment loop is involved.
func Build(ctx context.Context, eng engine.Engine, scripts []Script, warmup []byte) ([]byte, error) {
	limit := uint64(isolate.DefaultMemoryLimitMB) << 20
	var heap engine.Heap
	allocator := alloc.NewLimited(limit, func() uint64 {
		if heap == nil {
			return 0
		}
		return heap.Statistics().CodeSize
	})

	heap, err := eng.NewHeap(ctx, engine.HeapConfig{MemoryLimit: limit, Allocator: allocator})
	if err != nil {
		return nil, errors.SnapshotFailed(err, nil)
	}
	defer heap.Close(ctx)

	def, err := heap.NewScope(ctx)
	if err != nil {
		return nil, errors.SnapshotFailed(err, nil)
	}
	dirty, err := heap.NewScope(ctx)
	if err != nil {
		return nil, errors.SnapshotFailed(err, nil)
	}

	for _, s := range scripts {
		src := engine.Source{
			Code:         s.Code,
			Filename:     s.Filename,
			LineOffset:   s.LineOffset,
			ColumnOffset: s.ColumnOffset,
		}
		program, _, err := heap.Compile(ctx, src, engine.CompileOptions{})
		if err != nil {
			return nil, failure(err)
		}
		if _, err := heap.Run(ctx, program, def); err != nil {
			return nil, failure(err)
		}
		// Same compiled form, never recompiled for the dirty pass.
		if _, err := heap.Run(ctx, program, dirty); err != nil {
			return nil, failure(err)
		}
	}

	if len(warmup) > 0 {
		src := engine.Source{Code: warmup, Filename: "<warmup>"}
		program, _, err := heap.Compile(ctx, src, engine.CompileOptions{})
		if err != nil {
			return nil, failure(err)
		}
		if _, err := heap.Run(ctx, program, dirty); err != nil {
			return nil, failure(err)
		}
	}

	image, err := heap.SerializeImage(ctx, def)
	if err != nil {
		return nil, errors.SnapshotFailed(err, nil)
	}
	if len(image) == 0 {
		return nil, errors.SnapshotFailed(errors.InvalidData(errors.PhaseSnapshot, "empty image"), nil)
	}
	return image, nil
}

// failure wraps a script error, preserving the thrown value copy when the
// cause is structured.
func failure(err error) error {
	var value any
	if e, ok := err.(*errors.Error); ok {
		value = e.Value
	}
	return errors.SnapshotFailed(err, value)
}
