// Package alloc implements the per-environment bounded allocator.
//
// A Limited allocator tracks two numbers: the engine's own heap size (an
// estimate, refreshed lazily) and the bytes it has granted itself. An
// allocation that would push the sum past the configured limit is denied
// rather than granted. Because querying the engine's authoritative heap
// statistic is comparatively expensive, the allocator only re-queries it
// when the running estimate crosses a watermark, then pushes the watermark
// a megabyte forward so the next several allocations skip the check.
//
// The allocator is invoked from inside the engine's allocation path, so it
// must never allocate engine heap itself or run callbacks. It is confined
// to the owning environment's goroutine and needs no locking.
package alloc
