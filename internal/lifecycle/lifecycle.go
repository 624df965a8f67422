// Package lifecycle tracks process state reported by the health endpoint.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State is shared between the signal handler and the health endpoint.
type State struct {
	started      time.Time
	shuttingDown atomic.Bool
}

// New returns a State started now.
func New() *State {
	return &State{started: time.Now()}
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health returns 503 with status shutting-down while true.
func (s *State) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func (s *State) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Uptime is the time since New.
func (s *State) Uptime() time.Duration {
	return time.Since(s.started)
}
