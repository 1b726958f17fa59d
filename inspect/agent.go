package inspect

import (
	"sync"

	"github.com/wippyai/isolates/errors"
)

// Event methods emitted by an Agent.
const (
	MethodContextCreated   = "contextCreated"
	MethodContextDestroyed = "contextDestroyed"
	MethodAgentClosed      = "agentClosed"
)

// Event is a single inspection notification.
type Event struct {
	Method string
	Params map[string]any
}

// Agent fans out inspection events to connected sessions. It is attached to
// one environment and closed with it.
type Agent struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// NewAgent creates an agent with no connected sessions.
func NewAgent() *Agent {
	return &Agent{sessions: make(map[*Session]struct{})}
}

// Connect attaches a new session. It fails once the agent's environment is
// gone.
func (a *Agent) Connect() (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, errors.EnvironmentGone(errors.PhaseInspect)
	}
	s := &Session{agent: a, events: make(chan Event, eventBuffer)}
	a.sessions[s] = struct{}{}
	return s, nil
}

// ContextCreated notifies sessions that a context joined the environment.
func (a *Agent) ContextCreated(id string) {
	a.notify(Event{Method: MethodContextCreated, Params: map[string]any{"id": id}})
}

// ContextDestroyed notifies sessions that a context is about to be released.
// Must be called before the context's native reference is freed.
func (a *Agent) ContextDestroyed(id string) {
	a.notify(Event{Method: MethodContextDestroyed, Params: map[string]any{"id": id}})
}

// Close detaches every session and rejects future connections. Safe to call
// more than once.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	sessions := make([]*Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = map[*Session]struct{}{}
	a.mu.Unlock()

	for _, s := range sessions {
		s.push(Event{Method: MethodAgentClosed})
		s.detach()
	}
}

func (a *Agent) notify(e Event) {
	a.mu.Lock()
	sessions := make([]*Session, 0, len(a.sessions))
	for s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	for _, s := range sessions {
		s.push(e)
	}
}

func (a *Agent) disconnect(s *Session) {
	a.mu.Lock()
	delete(a.sessions, s)
	a.mu.Unlock()
}
