package isolate

import (
	"context"

	"github.com/google/uuid"

	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/transfer"
)

// Context is a refcounted handle to one scope inside an environment. The
// scope itself lives on the owning environment; the handle only carries the
// reference and may be shared across goroutines.
type Context struct {
	holder *Holder
	id     string
	scope  engine.Scope
	rc     *refCount
}

// CreateContext creates a new scope and returns its handle.
func (i *Isolate) CreateContext(ctx context.Context) (*Context, error) {
	return Call(ctx, i.holder, createContext(i.holder))
}

// CreateContextAsync is the non-blocking form of CreateContext.
func (i *Isolate) CreateContextAsync() *Future[*Context] {
	return Submit(i.holder, createContext(i.holder))
}

func createContext(h *Holder) func(ctx context.Context, env *Environment) (*Context, error) {
	return func(ctx context.Context, env *Environment) (*Context, error) {
		scope, err := env.heap.NewScope(ctx)
		if err != nil {
			return nil, err
		}
		c := &Context{holder: h, id: uuid.NewString(), scope: scope}
		c.rc = newRefCount(releaseOnOwner(h, func(ctx context.Context) {
			if env.agent != nil {
				env.agent.ContextDestroyed(c.id)
			}
			_ = scope.Release(ctx)
		}))
		if env.agent != nil {
			env.agent.ContextCreated(c.id)
		}
		return c, nil
	}
}

// ID returns the context's unique identifier, as reported to inspector
// sessions.
func (c *Context) ID() string {
	return c.id
}

// AddRef takes an additional reference. It reports false when the handle
// has already been fully released.
func (c *Context) AddRef() bool {
	return c.rc.ref()
}

// Release drops one reference. Dropping the last one schedules scope
// teardown onto the owning environment; when that environment is already
// gone the scope was reclaimed with the heap and Release does nothing.
func (c *Context) Release() {
	c.rc.deref()
}

// Global reads a named global from the context's scope. A name that was
// never set yields Undefined, not an error.
func (c *Context) Global(ctx context.Context, name string) (transfer.Value, error) {
	if !c.rc.alive() {
		return transfer.Undefined(), errors.InvalidInput("context has been released")
	}
	return Call(ctx, c.holder, func(ctx context.Context, env *Environment) (transfer.Value, error) {
		v, ok := c.scope.Global(name)
		if !ok {
			return transfer.Undefined(), nil
		}
		return v, nil
	})
}

// SetGlobal writes a named global into the context's scope. The value is
// copied; later mutation on the caller's side is not observed.
func (c *Context) SetGlobal(ctx context.Context, name string, v transfer.Value) error {
	if !c.rc.alive() {
		return errors.InvalidInput("context has been released")
	}
	v = v.Copy()
	_, err := Call(ctx, c.holder, func(ctx context.Context, env *Environment) (struct{}, error) {
		c.scope.SetGlobal(name, v)
		return struct{}{}, nil
	})
	return err
}
