package isolate

// Holder is the shareable reference through which every handle reaches its
// environment. Handles never store the Environment directly: they upgrade
// the holder at use time, so a handle outliving a disposed environment
// degrades to "gone" errors instead of touching freed state.
type Holder struct {
	env *Environment
}

func newHolder(env *Environment) *Holder {
	return &Holder{env: env}
}

// upgrade returns the environment if it can still accept work, or nil once
// it has fully terminated.
func (h *Holder) upgrade() *Environment {
	e := h.env
	e.mu.Lock()
	terminated := e.terminated
	e.mu.Unlock()
	if terminated {
		return nil
	}
	return e
}
