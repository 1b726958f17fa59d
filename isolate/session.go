package isolate

import (
	"context"

	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/inspect"
)

// Session is a refcounted handle to one inspection channel. Unlike contexts
// and scripts its native side lives entirely on the host, so teardown does
// not need to be re-homed onto the environment goroutine.
type Session struct {
	rc   *refCount
	sess *inspect.Session
}

// CreateInspectorSession connects an inspection session to the isolate. It
// is fully synchronous: every failure mode is detectable at the call site,
// so no task is scheduled.
//
// It fails with not_enabled when the isolate was created without
// EnableInspector, with environment_gone after disposal, and with
// invalid_input when called from code already running on this isolate's
// goroutine, which would deadlock the session against its own target.
func (i *Isolate) CreateInspectorSession(ctx context.Context) (*Session, error) {
	env := i.holder.upgrade()
	if env == nil || env.isDisposed() {
		return nil, errors.EnvironmentGone(errors.PhaseInspect)
	}
	if fromContext(ctx) == env {
		return nil, errors.InvalidInput("an isolate is not debuggable from within itself")
	}
	if env.agent == nil {
		return nil, errors.NotEnabled("inspector")
	}
	sess, err := env.agent.Connect()
	if err != nil {
		return nil, err
	}
	s := &Session{sess: sess}
	s.rc = newRefCount(sess.Close)
	return s, nil
}

// Events returns the session's event stream. The channel closes when the
// session is released or its isolate is disposed.
func (s *Session) Events() <-chan inspect.Event {
	return s.sess.Events()
}

// AddRef takes an additional reference. It reports false when the handle
// has already been fully released.
func (s *Session) AddRef() bool {
	return s.rc.ref()
}

// Release drops one reference; the last one disconnects the session.
// Releasing after the isolate is disposed is a no-op.
func (s *Session) Release() {
	s.rc.deref()
}
