package engine

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/transfer"
)

const wasmPageSize = 64 * 1024

// hostModule is the import namespace guest programs reach scope globals
// through.
const hostModule = "env"

// WazeroEngine implements Engine using one wazero runtime per heap.
type WazeroEngine struct{}

// NewWazeroEngine creates a new wazero-based engine.
func NewWazeroEngine() *WazeroEngine {
	return &WazeroEngine{}
}

// Close releases engine-wide resources. Heaps are owned and closed by their
// environments; the shared compilation cache lives for the process.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return nil
}

// NewHeap creates an isolated heap with its own runtime, sized from the
// configured memory limit.
func (e *WazeroEngine) NewHeap(ctx context.Context, cfg HeapConfig) (Heap, error) {
	if cfg.Allocator == nil {
		return nil, errors.InvalidData(errors.PhaseEngine, "heap requires an allocator")
	}

	// Old-generation style headroom: the page ceiling is twice the budget,
	// the allocator enforces the real limit.
	pages := (2 * cfg.MemoryLimit) / wasmPageSize
	if pages < 1 {
		pages = 1
	}
	if pages > 65536 {
		pages = 65536
	}

	rcfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(uint32(pages)).
		WithCompilationCache(sharedCompilationCache())

	h := &wazeroHeap{
		runtime: wazero.NewRuntimeWithConfig(ctx, rcfg),
		alloc:   cfg.Allocator,
		limit:   cfg.MemoryLimit,
	}

	if len(cfg.Image) > 0 {
		seed, err := decodeImage(cfg.Image)
		if err != nil {
			_ = h.runtime.Close(ctx)
			return nil, err
		}
		h.seed = seed
	}

	_, err := h.runtime.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().WithFunc(h.hostGlobalGet).Export("global_get").
		NewFunctionBuilder().WithFunc(h.hostGlobalSet).Export("global_set").
		Instantiate(ctx)
	if err != nil {
		_ = h.runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "instantiate host module")
	}

	Logger().Debug("heap created",
		zap.Uint64("memory_limit", cfg.MemoryLimit),
		zap.Uint64("page_ceiling", pages),
		zap.Bool("seeded", h.seed != nil))

	return h, nil
}

func decodeImage(image []byte) (map[string]transfer.Value, error) {
	v, err := transfer.Decode(image)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "decode snapshot image")
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, errors.InvalidData(errors.PhaseEngine, "snapshot image is not a scope table")
	}
	return m, nil
}

type wazeroHeap struct {
	runtime wazero.Runtime
	alloc   Allocator
	limit   uint64
	seed    map[string]transfer.Value

	memBytes  atomic.Uint64
	codeBytes atomic.Uint64
	scopes    atomic.Int32
	programs  atomic.Int32

	// denied records an allocator refusal during the current instantiation
	// so the resulting engine error can be reported as out-of-memory.
	denied atomic.Bool
	closed bool
}

type scopeCtxKey struct{}

func withScope(ctx context.Context, s *wazeroScope) context.Context {
	return context.WithValue(ctx, scopeCtxKey{}, s)
}

func scopeFromContext(ctx context.Context) *wazeroScope {
	s, _ := ctx.Value(scopeCtxKey{}).(*wazeroScope)
	return s
}

func (h *wazeroHeap) hostGlobalGet(ctx context.Context, m api.Module, ptr, n uint32) int64 {
	s := scopeFromContext(ctx)
	if s == nil {
		return 0
	}
	name, ok := m.Memory().Read(ptr, n)
	if !ok {
		return 0
	}
	v, ok := s.Global(string(name))
	if !ok {
		return 0
	}
	i, _ := v.AsInt()
	return i
}

func (h *wazeroHeap) hostGlobalSet(ctx context.Context, m api.Module, ptr, n uint32, val int64) {
	s := scopeFromContext(ctx)
	if s == nil {
		return
	}
	name, ok := m.Memory().Read(ptr, n)
	if !ok {
		return
	}
	s.SetGlobal(string(name), transfer.Int(val))
}

func (h *wazeroHeap) Compile(ctx context.Context, src Source, opts CompileOptions) (Program, CompileInfo, error) {
	var info CompileInfo
	if len(opts.CachedCode) > 0 {
		info.SuppliedCachedCode = true
		info.CachedCodeRejected = !cachedCodeMatches(opts.CachedCode, src.Code)
	}

	compiled, err := h.runtime.CompileModule(ctx, src.Code)
	if err != nil {
		return nil, CompileInfo{}, errors.CompileFailed(err, src.Origin())
	}

	if opts.ProduceCachedCode && !info.SuppliedCachedCode {
		info.CachedCode = buildCachedCode(src.Code)
	}

	size := uint64(len(src.Code))
	h.codeBytes.Add(size)
	h.programs.Add(1)

	return &wazeroProgram{
		heap:     h,
		compiled: compiled,
		origin:   src.Origin(),
		size:     size,
	}, info, nil
}

func (h *wazeroHeap) NewScope(ctx context.Context) (Scope, error) {
	globals := make(map[string]transfer.Value, len(h.seed))
	for k, v := range h.seed {
		globals[k] = v.Copy()
	}
	h.scopes.Add(1)
	return &wazeroScope{heap: h, globals: globals}, nil
}

func (h *wazeroHeap) Run(ctx context.Context, p Program, s Scope) (transfer.Value, error) {
	prog, ok := p.(*wazeroProgram)
	if !ok || prog.heap != h {
		return transfer.Undefined(), errors.InvalidData(errors.PhaseEngine, "program belongs to a different heap")
	}
	scope, ok := s.(*wazeroScope)
	if !ok || scope.heap != h {
		return transfer.Undefined(), errors.InvalidData(errors.PhaseEngine, "scope belongs to a different heap")
	}

	ctx = withScope(ctx, scope)
	ctx = experimental.WithMemoryAllocator(ctx, &heapMemory{heap: h})

	h.denied.Store(false)

	// Anonymous instance; the wasm start section runs here. The automatic
	// `_start` convention is disabled so programs only run what they declare.
	mod, err := h.runtime.InstantiateModule(ctx, prog.compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		if h.denied.Load() {
			return transfer.Undefined(), errors.OutOfMemory(h.limit)
		}
		return transfer.Undefined(), errors.Execution(err, prog.origin)
	}
	scope.instances = append(scope.instances, mod)

	if fn := mod.ExportedFunction("run"); fn != nil {
		res, err := fn.Call(ctx)
		if err != nil {
			if h.denied.Load() {
				return transfer.Undefined(), errors.OutOfMemory(h.limit)
			}
			return transfer.Undefined(), errors.Execution(err, prog.origin)
		}
		return decodeResult(fn, res), nil
	}

	return transfer.Undefined(), nil
}

func decodeResult(fn api.Function, res []uint64) transfer.Value {
	types := fn.Definition().ResultTypes()
	if len(res) == 0 || len(types) == 0 {
		return transfer.Undefined()
	}
	switch types[0] {
	case api.ValueTypeI32:
		return transfer.Int(int64(int32(res[0])))
	case api.ValueTypeI64:
		return transfer.Int(int64(res[0]))
	case api.ValueTypeF32:
		return transfer.Float(float64(api.DecodeF32(res[0])))
	case api.ValueTypeF64:
		return transfer.Float(api.DecodeF64(res[0]))
	default:
		return transfer.Undefined()
	}
}

func (h *wazeroHeap) Statistics() Statistics {
	mem := h.memBytes.Load()
	code := h.codeBytes.Load()
	return Statistics{
		TotalHeapSize:           mem + code,
		UsedHeapSize:            mem,
		CodeSize:                code,
		HeapSizeLimit:           h.limit,
		ExternallyAllocatedSize: h.alloc.Allocated(),
		ScopeCount:              uint32(h.scopes.Load()),
		ProgramCount:            uint32(h.programs.Load()),
	}
}

func (h *wazeroHeap) SerializeImage(ctx context.Context, s Scope) ([]byte, error) {
	scope, ok := s.(*wazeroScope)
	if !ok || scope.heap != h {
		return nil, errors.InvalidData(errors.PhaseEngine, "scope belongs to a different heap")
	}
	return transfer.Encode(transfer.Map(scope.globals)), nil
}

func (h *wazeroHeap) Close(ctx context.Context) error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.runtime.Close(ctx)
}

// wazeroProgram is a compiled-but-unbound module.
type wazeroProgram struct {
	heap     *wazeroHeap
	compiled wazero.CompiledModule
	origin   errors.Location
	size     uint64
	released bool
}

func (p *wazeroProgram) Origin() errors.Location {
	return p.origin
}

func (p *wazeroProgram) Release(ctx context.Context) error {
	if p.released {
		return nil
	}
	p.released = true
	p.heap.codeBytes.Add(^(p.size - 1))
	p.heap.programs.Add(-1)
	return p.compiled.Close(ctx)
}

// wazeroScope is a host-side global table plus the instances that ran
// against it.
type wazeroScope struct {
	heap      *wazeroHeap
	globals   map[string]transfer.Value
	instances []api.Module
	released  bool
}

func (s *wazeroScope) Global(name string) (transfer.Value, bool) {
	v, ok := s.globals[name]
	return v, ok
}

func (s *wazeroScope) SetGlobal(name string, v transfer.Value) {
	s.globals[name] = v
}

func (s *wazeroScope) Release(ctx context.Context) error {
	if s.released {
		return nil
	}
	s.released = true
	s.heap.scopes.Add(-1)
	var firstErr error
	for _, mod := range s.instances {
		if err := mod.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.instances = nil
	return firstErr
}

// heapMemory routes linear memory growth through the heap's allocator.
type heapMemory struct {
	heap *wazeroHeap
}

func (a *heapMemory) Allocate(cap, max uint64) experimental.LinearMemory {
	return &limitedBuffer{heap: a.heap, max: max}
}

// limitedBuffer backs one linear memory. Growth reserves against the
// bounded allocator first; a refusal reports failure to the engine instead
// of growing.
type limitedBuffer struct {
	heap     *wazeroHeap
	buf      []byte
	max      uint64
	reserved uint64
}

func (b *limitedBuffer) Reallocate(size uint64) []byte {
	if size > b.max {
		return nil
	}
	if size > b.reserved {
		grow := size - b.reserved
		if !b.heap.alloc.Reserve(grow) {
			b.heap.denied.Store(true)
			return nil
		}
		b.reserved = size
		b.heap.memBytes.Add(grow)
	}
	if uint64(cap(b.buf)) < size {
		next := make([]byte, size)
		copy(next, b.buf)
		b.buf = next
	}
	return b.buf[:size]
}

func (b *limitedBuffer) Free() {
	b.heap.alloc.Release(b.reserved)
	b.heap.memBytes.Add(^(b.reserved - 1))
	b.reserved = 0
	b.buf = nil
}
