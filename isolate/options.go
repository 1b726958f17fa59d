package isolate

import (
	"fmt"

	"github.com/wippyai/isolates/errors"
)

const (
	// DefaultMemoryLimitMB applies when Options.MemoryLimitMB is zero.
	DefaultMemoryLimitMB = 128
	// MinMemoryLimitMB is the smallest accepted heap budget.
	MinMemoryLimitMB = 8
)

// Options configures a new isolate.
type Options struct {
	// MemoryLimitMB caps the environment's heap in mebibytes. Zero selects
	// DefaultMemoryLimitMB; values below MinMemoryLimitMB are rejected.
	MemoryLimitMB uint64

	// Snapshot seeds the heap from an image produced by the snapshot
	// package. Invalid image data fails isolate creation.
	Snapshot []byte

	// EnableInspector attaches an inspection agent so sessions can be
	// opened against this isolate.
	EnableInspector bool
}

func (o *Options) withDefaults() (Options, error) {
	out := *o
	if out.MemoryLimitMB == 0 {
		out.MemoryLimitMB = DefaultMemoryLimitMB
	}
	if out.MemoryLimitMB < MinMemoryLimitMB {
		return out, errors.InvalidInput(fmt.Sprintf("memory limit must be at least %d MB", MinMemoryLimitMB))
	}
	return out, nil
}

// ScriptOptions configures compilation.
type ScriptOptions struct {
	// Filename names the source in errors and origins. Empty selects a
	// placeholder name.
	Filename string

	// LineOffset and ColumnOffset shift reported positions, for sources
	// embedded in a larger document.
	LineOffset   int
	ColumnOffset int

	// CachedCode is a candidate artifact from a prior compilation of the
	// same source. A stale or mismatched artifact is ignored, never an
	// error; check Script.CachedDataRejected.
	CachedCode []byte

	// ProduceCachedCode asks compilation to emit an artifact retrievable
	// via Script.CachedData.
	ProduceCachedCode bool
}
