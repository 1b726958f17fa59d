// Package errors provides structured error types for the isolates library.
//
// Errors are categorized by Phase (where in the task protocol the error
// occurred) and Kind (error category). The Error type includes rich context:
// origin location, a copied thrown value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseExecute, errors.KindExecution).
//		Location("boot.wasm", 12, 0).
//		Detail("unreachable instruction executed").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.EnvironmentGone(errors.PhaseSchedule)
//	err := errors.OutOfMemory(limit)
//
// All errors implement the standard error interface and support errors.Is/As.
// Execution errors are captured inside the target environment and re-raised
// on the caller's side, so they carry everything needed to be meaningful in
// a heap other than the one that produced them.
package errors
