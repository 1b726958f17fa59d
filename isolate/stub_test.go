package isolate

import (
	"context"
	"sync"

	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/transfer"
)

// stubEngine is an in-memory engine for protocol-level tests: compiling
// stores the source, running echoes it back, and teardown flips flags the
// tests can assert on.
type stubEngine struct{}

func (stubEngine) NewHeap(ctx context.Context, cfg engine.HeapConfig) (engine.Heap, error) {
	if cfg.Allocator == nil {
		return nil, errors.InvalidInput("heap requires an allocator")
	}
	return &stubHeap{limit: cfg.MemoryLimit}, nil
}

func (stubEngine) Close(context.Context) error { return nil }

type stubHeap struct {
	mu        sync.Mutex
	limit     uint64
	scopes    uint32
	programs  uint32
	closed    bool
	lastScope engine.Scope
}

func (h *stubHeap) Compile(ctx context.Context, src engine.Source, opts engine.CompileOptions) (engine.Program, engine.CompileInfo, error) {
	if string(src.Code) == "bad" {
		return nil, engine.CompileInfo{}, errors.CompileFailed(errors.InvalidInput("syntax error"), src.Origin())
	}
	info := engine.CompileInfo{}
	blob := "cache:" + string(src.Code)
	if len(opts.CachedCode) > 0 {
		info.SuppliedCachedCode = true
		info.CachedCodeRejected = string(opts.CachedCode) != blob
	} else if opts.ProduceCachedCode {
		info.CachedCode = []byte(blob)
	}
	h.mu.Lock()
	h.programs++
	h.mu.Unlock()
	return &stubProgram{heap: h, code: string(src.Code), origin: src.Origin()}, info, nil
}

func (h *stubHeap) NewScope(ctx context.Context) (engine.Scope, error) {
	h.mu.Lock()
	h.scopes++
	h.mu.Unlock()
	return &stubScope{heap: h, globals: map[string]transfer.Value{}}, nil
}

func (h *stubHeap) Run(ctx context.Context, p engine.Program, s engine.Scope) (transfer.Value, error) {
	h.mu.Lock()
	h.lastScope = s
	h.mu.Unlock()
	prog := p.(*stubProgram)
	if prog.code == "trap" {
		return transfer.Undefined(), errors.Execution(errors.InvalidInput("trap"), prog.origin)
	}
	return transfer.String(prog.code), nil
}

func (h *stubHeap) Statistics() engine.Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return engine.Statistics{
		HeapSizeLimit: h.limit,
		ScopeCount:    h.scopes,
		ProgramCount:  h.programs,
	}
}

func (h *stubHeap) SerializeImage(ctx context.Context, s engine.Scope) ([]byte, error) {
	sc := s.(*stubScope)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return transfer.Encode(transfer.Map(sc.globals)), nil
}

func (h *stubHeap) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *stubHeap) ranAgainst() engine.Scope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastScope
}

func (h *stubHeap) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type stubScope struct {
	heap     *stubHeap
	mu       sync.Mutex
	globals  map[string]transfer.Value
	released bool
}

func (s *stubScope) Global(name string) (transfer.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.globals[name]
	return v, ok
}

func (s *stubScope) SetGlobal(name string, v transfer.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[name] = v
}

func (s *stubScope) Release(ctx context.Context) error {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	s.heap.mu.Lock()
	s.heap.scopes--
	s.heap.mu.Unlock()
	return nil
}

func (s *stubScope) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type stubProgram struct {
	heap     *stubHeap
	code     string
	origin   errors.Location
	mu       sync.Mutex
	released bool
}

func (p *stubProgram) Origin() errors.Location { return p.origin }

func (p *stubProgram) Release(ctx context.Context) error {
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()
	p.heap.mu.Lock()
	p.heap.programs--
	p.heap.mu.Unlock()
	return nil
}

func (p *stubProgram) isReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}
