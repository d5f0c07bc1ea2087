// Package session provides listening-session state and session ID generation.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the state of the listening session.
type State int

const (
	// StateIdle - No session is active. The engine may or may not be present.
	StateIdle State = iota
	// StateListening - The engine has been armed and results are pending.
	StateListening
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrAlreadyListening is returned when a session is begun while another is active.
var ErrAlreadyListening = errors.New("session is already listening")

// Lifecycle manages the state machine for the listening session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE ──Begin(id)──→ LISTENING ──End()──→ IDLE
//
// Rules:
//   - Only one session can be LISTENING at a time.
//   - End() is idempotent and reports whether a session was actually closed.
type Lifecycle struct {
	mu        sync.RWMutex
	sessionId string
	state     State
}

// NewLifecycle creates a new lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// SessionId returns the ID of the current (or last) session.
func (l *Lifecycle) SessionId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsListening returns true if a session is active.
func (l *Lifecycle) IsListening() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateListening
}

// Begin transitions IDLE → LISTENING under the given session ID.
func (l *Lifecycle) Begin(sessionId string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateListening {
		return ErrAlreadyListening
	}
	l.sessionId = sessionId
	l.state = StateListening
	return nil
}

// End transitions LISTENING → IDLE.
// Returns true if a session was closed, false if already idle.
func (l *Lifecycle) End() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateListening {
		return false
	}
	l.state = StateIdle
	return true
}
