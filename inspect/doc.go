// Package inspect implements the debugging side-channel of an environment.
//
// An Agent is attached to an environment created with inspection enabled.
// Sessions connect to the agent and receive lifecycle events: contexts being
// created and destroyed, and the agent shutting down with its environment.
// Event delivery is best-effort; a session that stops draining its channel
// loses events rather than blocking the environment.
package inspect
