package isolate

import (
	"context"
	"sync/atomic"
)

// refCount is the shared release protocol for resource handles. A handle
// starts with one reference; dropping the last one triggers release exactly
// once. ref fails after the count has reached zero, so a revived handle can
// never observe freed state.
type refCount struct {
	n       atomic.Int32
	release func()
}

func newRefCount(release func()) *refCount {
	rc := &refCount{release: release}
	rc.n.Store(1)
	return rc
}

func (rc *refCount) ref() bool {
	for {
		n := rc.n.Load()
		if n <= 0 {
			return false
		}
		if rc.n.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (rc *refCount) deref() {
	if rc.n.Add(-1) == 0 {
		rc.release()
	}
}

func (rc *refCount) alive() bool {
	return rc.n.Load() > 0
}

// releaseOnOwner builds a release function that re-homes teardown onto the
// owning environment. When the environment is already gone the native
// reference was reclaimed by heap teardown, so losing the race is silent.
func releaseOnOwner(h *Holder, teardown func(ctx context.Context)) func() {
	return func() {
		env := h.upgrade()
		if env == nil {
			return
		}
		t := &queuedTask{execute: teardown}
		_ = env.schedule(t, scheduleOptions{teardown: true})
	}
}
