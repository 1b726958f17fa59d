// Package isolate implements environments and the cross-environment task
// protocol.
//
// An Isolate is the user-facing handle to one Environment: an isolated heap
// plus the single goroutine allowed to touch it. Operations addressed to an
// isolate (creating a context, compiling a script, reading heap statistics)
// are expressed as tasks with three stages:
//
//   - capture: inputs are validated and copied into heap-independent form
//     on the caller's side; nothing tied to the caller's heap crosses over
//   - execute: the work runs on the target environment's goroutine, the
//     only place its heap may be touched
//   - deliver: the heap-independent result (or the captured error) comes
//     back to the caller, either by blocking (Call) or through a pending
//     Future (Submit)
//
// Contexts, Scripts and Sessions are refcounted handles around native
// references owned by one environment. Dropping the last reference never
// frees anything inline: teardown is re-scheduled onto the owning
// environment, and a release that races with disposal resolves to "already
// reclaimed" rather than touching freed memory.
package isolate
