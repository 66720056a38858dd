package common

import (
	"sync"
)

// TrackedMutex is the concrete DB-wide mutex handed to internal/memlist's
// Mutex interface. It behaves exactly like sync.Mutex, plus a best-effort
// AssertHeld debug check, in the spirit of the teacher's soft
// common.AssertTrue invariants rather than a hard runtime panic.
type TrackedMutex struct {
	mu     sync.Mutex
	held   bool
	heldMu sync.Mutex
}

func (m *TrackedMutex) Lock() {
	m.mu.Lock()
	m.heldMu.Lock()
	m.held = true
	m.heldMu.Unlock()
}

func (m *TrackedMutex) Unlock() {
	m.heldMu.Lock()
	m.held = false
	m.heldMu.Unlock()
	m.mu.Unlock()
}

// AssertHeld soft-asserts the mutex is currently locked by someone. It
// cannot verify the *caller* holds it (Go has no portable "current
// goroutine owns this mutex" primitive) so, like the teacher's own
// AssertTrue calls, it is a debug aid rather than a correctness proof.
func (m *TrackedMutex) AssertHeld() {
	m.heldMu.Lock()
	held := m.held
	m.heldMu.Unlock()
	AssertTrue(held, "TrackedMutex: expected to be held")
}
