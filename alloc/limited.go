package alloc

import "sync/atomic"

const (
	// checkMargin is how far past the current usage the watermark is pushed
	// after a successful re-check.
	checkMargin = 1 << 20

	// initialEngineHeap is the assumed engine heap size before the first
	// authoritative query.
	initialEngineHeap = 4 << 20

	initialWatermark = 1 << 20
)

// StatisticsFunc returns the engine's authoritative heap size in bytes.
// It must be safe to call from inside the engine's allocation path.
type StatisticsFunc func() uint64

// Limited gates externally-tracked allocations against a byte budget shared
// with the engine's own heap. Reserve and Release must be called from the
// owning environment's goroutine; Allocated and Limit are safe from any
// goroutine.
type Limited struct {
	limit      uint64
	engineHeap uint64
	tracked    atomic.Uint64
	nextCheck  uint64
	stats      StatisticsFunc
}

// NewLimited creates an allocator with the given byte limit. stats may be
// nil, in which case the engine heap estimate never moves past its initial
// assumption.
func NewLimited(limit uint64, stats StatisticsFunc) *Limited {
	return &Limited{
		limit:      limit,
		engineHeap: initialEngineHeap,
		nextCheck:  initialWatermark,
		stats:      stats,
	}
}

// Reserve attempts to account for size bytes. It returns false, without
// granting anything, if the projected total would exceed the limit.
// Zero-size reservations always succeed.
func (a *Limited) Reserve(size uint64) bool {
	if size == 0 {
		return true
	}
	tracked := a.tracked.Load()
	if a.engineHeap+tracked+size > a.nextCheck {
		if a.stats != nil {
			a.engineHeap = a.stats()
		}
		if a.engineHeap+tracked+size > a.limit {
			return false
		}
		a.nextCheck = a.engineHeap + tracked + size + checkMargin
	}
	if a.engineHeap+tracked+size > a.limit {
		return false
	}
	a.tracked.Add(size)
	return true
}

// Release returns size bytes to the budget and pulls the watermark back by
// the same amount.
func (a *Limited) Release(size uint64) {
	tracked := a.tracked.Load()
	if size > tracked {
		size = tracked
	}
	a.tracked.Store(tracked - size)
	if size > a.nextCheck {
		a.nextCheck = 0
	} else {
		a.nextCheck -= size
	}
}

// Allocated returns the externally-tracked byte count.
func (a *Limited) Allocated() uint64 {
	return a.tracked.Load()
}

// Limit returns the configured byte budget.
func (a *Limited) Limit() uint64 {
	return a.limit
}
