package service

import "sync/atomic"

// Switch is the global pause flag. While paused, every state-mutating
// operation is refused; read-only queries keep working.
type Switch struct {
	paused atomic.Bool
}

// NewSwitch returns a running (unpaused) switch.
func NewSwitch() *Switch { return &Switch{} }

// Pause stops state-mutating operations.
func (s *Switch) Pause() { s.paused.Store(true) }

// Resume re-enables state-mutating operations.
func (s *Switch) Resume() { s.paused.Store(false) }

// Paused reports the current state.
func (s *Switch) Paused() bool { return s.paused.Load() }
