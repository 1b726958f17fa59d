package inspect

import "sync"

// eventBuffer bounds how far a session may fall behind before events are
// dropped.
const eventBuffer = 64

// Session is one connected inspection channel.
type Session struct {
	agent    *Agent
	events   chan Event
	detachMu sync.Mutex
	detached bool
}

// Events returns the session's event stream. The channel is closed when the
// session or its agent closes.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Close disconnects the session from its agent. Safe to call more than once
// and after the agent itself has closed.
func (s *Session) Close() {
	if s.agent != nil {
		s.agent.disconnect(s)
	}
	s.detach()
}

func (s *Session) push(e Event) {
	s.detachMu.Lock()
	defer s.detachMu.Unlock()
	if s.detached {
		return
	}
	select {
	case s.events <- e:
	default:
		// slow consumer, drop
	}
}

func (s *Session) detach() {
	s.detachMu.Lock()
	defer s.detachMu.Unlock()
	if s.detached {
		return
	}
	s.detached = true
	close(s.events)
}
