package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the task protocol the error occurred
type Phase string

const (
	PhaseCapture  Phase = "capture"  // reading inputs on the caller's side
	PhaseSchedule Phase = "schedule" // handing work to the target environment
	PhaseExecute  Phase = "execute"  // running inside the target environment
	PhaseDeliver  Phase = "deliver"  // returning results to the caller
	PhaseAlloc    Phase = "alloc"    // memory budget enforcement
	PhaseSnapshot Phase = "snapshot" // heap image construction
	PhaseInspect  Phase = "inspect"  // debugging sessions
	PhaseEngine   Phase = "engine"   // engine collaborator operations
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindTypeMismatch    Kind = "type_mismatch"
	KindEnvironmentGone Kind = "environment_gone"
	KindOutOfMemory     Kind = "out_of_memory"
	KindExecution       Kind = "execution"
	KindCompile         Kind = "compile"
	KindNotEnabled      Kind = "not_enabled"
	KindCache           Kind = "cache"
	KindSnapshotFailed  Kind = "snapshot_failed"
	KindInvalidData     Kind = "invalid_data"
	KindOverflow        Kind = "overflow"
	KindNotFound        Kind = "not_found"
)

// Location identifies the source position an execution error originated
// from. It survives the crossing between heaps, so an error thrown inside
// one environment can be attributed correctly when re-raised in another.
type Location struct {
	Filename string
	Line     int
	Column   int
}

func (l Location) String() string {
	if l.Filename == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", l.Filename, l.Line, l.Column)
}

// Error is the structured error type used throughout the library
type Error struct {
	Value  any // heap-independent copy of a thrown value, if any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Origin Location
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if loc := e.Origin.String(); loc != "" {
		b.WriteString(" at ")
		b.WriteString(loc)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is a structured error of the given kind,
// regardless of phase.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Location sets the origin source position
func (b *Builder) Location(filename string, line, column int) *Builder {
	b.err.Origin = Location{Filename: filename, Line: line, Column: column}
	return b
}

// Value sets the copied thrown value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidInput creates an invalid input error raised during capture
func InvalidInput(detail string) *Error {
	return &Error{
		Phase:  PhaseCapture,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// TypeMismatch creates a type mismatch error for a named option
func TypeMismatch(option, wantType string) *Error {
	return &Error{
		Phase:  PhaseCapture,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("`%s` must be %s", option, wantType),
	}
}

// EnvironmentGone creates an error for operations addressed to a disposed
// environment
func EnvironmentGone(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEnvironmentGone,
		Detail: "environment is disposed",
	}
}

// OutOfMemory creates a resource error for allocations denied by the
// configured memory budget
func OutOfMemory(limit uint64) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("allocation failed: memory limit of %d bytes reached", limit),
	}
}

// NotEnabled creates an error for requesting a capability the environment
// was created without
func NotEnabled(what string) *Error {
	return &Error{
		Phase:  PhaseSchedule,
		Kind:   KindNotEnabled,
		Detail: fmt.Sprintf("%s is not enabled for this environment", what),
	}
}

// Execution wraps an error thrown inside the target environment, attributed
// to its origin location
func Execution(cause error, origin Location) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindExecution,
		Cause:  cause,
		Origin: origin,
	}
}

// CompileFailed wraps a compilation failure, attributed to its origin
func CompileFailed(cause error, origin Location) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindCompile,
		Detail: "compile failed",
		Cause:  cause,
		Origin: origin,
	}
}

// SnapshotFailed creates a snapshot construction error carrying a copy of
// the thrown value, if any
func SnapshotFailed(cause error, value any) *Error {
	return &Error{
		Phase: PhaseSnapshot,
		Kind:  KindSnapshotFailed,
		Cause: cause,
		Value: value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
