// Package transfer provides the heap-independent value representation used
// to move data between environments.
//
// A Value is a tagged union of primitives, strings, binary blobs, lists and
// string-keyed maps. Values never reference an environment's heap: they are
// produced by copying during the capture stage of a cross-environment task
// and consumed only during the execute or deliver stages, so they are safe
// to hold across the thread and heap boundary.
//
// The package also defines the compact binary codec used for snapshot
// images. Encoding is deterministic (map keys are sorted) so identical
// state produces identical images.
package transfer
