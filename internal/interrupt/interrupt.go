// Package interrupt implements the cooperative cancellation surface the
// scheduler consults between tool tasks (spec §4.J). It is safe to arm,
// check, or clear from any goroutine — a signal handler, a TUI keypress
// handler, or the scheduler itself.
package interrupt

import (
	"context"
	"sync"
)

// Manager is a one-shot-per-arming cancellation flag with a channel for
// waiters. Fires exactly once per arming; subsequent Check calls continue to
// report fired until Clear.
type Manager struct {
	mu     sync.Mutex
	fired  bool
	armed  bool
	waitCh chan struct{}
}

// New returns a disarmed Manager.
func New() *Manager {
	return &Manager{waitCh: make(chan struct{})}
}

// Arm prepares the manager to accept a Fire. Calling Arm while already armed
// is a no-op other than resetting the fired state.
func (m *Manager) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = true
	m.fired = false
	m.waitCh = make(chan struct{})
}

// Disarm stops accepting fires without clearing an already-fired state.
func (m *Manager) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
}

// Fire signals cancellation. Safe to call from any context; no-ops if not
// armed or already fired.
func (m *Manager) Fire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed || m.fired {
		return
	}
	m.fired = true
	close(m.waitCh)
}

// Check reports whether interrupt has fired, without blocking.
func (m *Manager) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// Wait blocks until fired or ctx is done, reporting whether it fired.
func (m *Manager) Wait(ctx context.Context) (fired bool) {
	m.mu.Lock()
	ch := m.waitCh
	alreadyFired := m.fired
	m.mu.Unlock()
	if alreadyFired {
		return true
	}
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Clear resets the fired state so the manager can be reused without a fresh
// Arm/Disarm cycle.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fired = false
	m.waitCh = make(chan struct{})
}
