// Package engine defines the narrow interfaces through which the script
// engine collaborator is consumed, and provides the production
// implementation backed by wazero.
//
// A Heap is one isolated engine instance: its own compilation namespace,
// its own linear memories, its own byte budget. Programs and Scopes handed
// out by a Heap are opaque native references; the isolate package ensures
// they are only used and released on the goroutine that owns the Heap.
//
// The wazero implementation treats WebAssembly modules as programs. A Scope
// is a host-side global table guest code reaches through the `env` host
// module (global_get/global_set); running a program instantiates its
// compiled module against the scope selected through the context. All
// linear memory growth is routed through the configured Allocator, so a
// heap can never silently outgrow its budget.
package engine
