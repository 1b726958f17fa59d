package engine

import (
	"context"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/transfer"
)

// defaultFilename attributes diagnostics for sources that did not carry one.
const defaultFilename = "<isolates>"

// Allocator gates heap growth against a byte budget. Implementations are
// confined to the owning environment's goroutine; they are called from
// inside the engine's allocation path and must not allocate engine memory
// or run callbacks themselves.
type Allocator interface {
	// Reserve accounts for size bytes, or returns false if that would
	// exceed the budget. Zero-size reservations always succeed.
	Reserve(size uint64) bool
	// Release returns size bytes to the budget.
	Release(size uint64)
	// Allocated returns the currently reserved byte count.
	Allocated() uint64
}

// HeapConfig configures a new isolated heap.
type HeapConfig struct {
	// MemoryLimit is the byte budget, also used to derive engine sizing.
	MemoryLimit uint64
	// Allocator gates all heap growth. Required.
	Allocator Allocator
	// Image optionally seeds new scopes from a previously-built snapshot
	// instead of starting empty.
	Image []byte
}

// Source is program text plus its diagnostic attribution.
type Source struct {
	Code         []byte
	Filename     string
	LineOffset   int
	ColumnOffset int
}

// Origin returns the location errors raised by this source are attributed to.
func (s Source) Origin() errors.Location {
	name := s.Filename
	if name == "" {
		name = defaultFilename
	}
	return errors.Location{Filename: name, Line: s.LineOffset, Column: s.ColumnOffset}
}

// CompileOptions control code-cache behavior for a single compile.
type CompileOptions struct {
	// CachedCode is an opaque cache blob from a previous compile. It is
	// consulted and may be rejected; rejection is reported, not fatal.
	CachedCode []byte
	// ProduceCachedCode requests a new cache blob alongside the compiled
	// program. Ignored when CachedCode is supplied.
	ProduceCachedCode bool
}

// CompileInfo reports code-cache outcomes alongside a successful compile.
type CompileInfo struct {
	CachedCode         []byte
	SuppliedCachedCode bool
	CachedCodeRejected bool
}

// Statistics is a point-in-time view of a heap's footprint.
type Statistics struct {
	// TotalHeapSize is everything the engine holds: code plus memory.
	TotalHeapSize uint64
	// UsedHeapSize is live linear memory.
	UsedHeapSize uint64
	// CodeSize is the compiled program footprint, not routed through the
	// Allocator.
	CodeSize uint64
	// HeapSizeLimit is the configured byte budget.
	HeapSizeLimit uint64
	// ExternallyAllocatedSize is what the Allocator has granted.
	ExternallyAllocatedSize uint64
	ScopeCount              uint32
	ProgramCount            uint32
}

// Program is a compiled-but-unbound program. Release must only be called on
// the goroutine that owns the producing Heap.
type Program interface {
	Origin() errors.Location
	Release(ctx context.Context) error
}

// Scope is a top-level execution scope: the global state programs run
// against. Release must only be called on the goroutine that owns the
// producing Heap.
type Scope interface {
	Global(name string) (transfer.Value, bool)
	SetGlobal(name string, v transfer.Value)
	Release(ctx context.Context) error
}

// Heap is one isolated engine instance. All methods except Statistics must
// be called from the owning environment's goroutine.
type Heap interface {
	Compile(ctx context.Context, src Source, opts CompileOptions) (Program, CompileInfo, error)
	NewScope(ctx context.Context) (Scope, error)
	// Run executes a compiled program against a scope and returns a
	// heap-independent result value.
	Run(ctx context.Context, p Program, s Scope) (transfer.Value, error)
	Statistics() Statistics
	// SerializeImage captures the given scope's state as a snapshot image
	// usable to seed a new heap.
	SerializeImage(ctx context.Context, s Scope) ([]byte, error)
	Close(ctx context.Context) error
}

// Engine creates isolated heaps.
type Engine interface {
	NewHeap(ctx context.Context, cfg HeapConfig) (Heap, error)
	Close(ctx context.Context) error
}
