package memlist

import (
	"context"
	"fmt"
	"sync"
)

// entry is one (seq, type, key, value) tuple, mirroring spec §3's data
// model for the memtable's opaque indexed entry set.
type entry struct {
	seq      uint64
	key      string
	val      []byte
	tomb     bool
}

// fakeMemtable is a minimal stand-in for the real skiplist-backed
// internal/memtable.Memtable, just enough to drive the core's tests
// without depending on the memtable package (keeping memlist's test
// suite as dependency-light as its production code).
type fakeMemtable struct {
	mu      sync.Mutex
	id      uint64
	entries []entry
	edits   ManifestEdit
}

func newFakeMemtable(id uint64) *fakeMemtable {
	return &fakeMemtable{id: id}
}

func (m *fakeMemtable) ID() uint64 { return m.id }

func (m *fakeMemtable) add(seq uint64, key string, val []byte, tomb bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry{seq: seq, key: key, val: val, tomb: tomb})
}

func (m *fakeMemtable) Get(lookupKey []byte, seq uint64) ([]byte, LookupStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(lookupKey)
	found := false
	var best entry
	for _, e := range m.entries {
		if e.key != key || e.seq > seq {
			continue
		}
		if !found || e.seq > best.seq {
			best = e
			found = true
		}
	}
	if !found {
		return nil, StatusAbsent
	}
	if best.tomb {
		return nil, StatusNotFound
	}
	return best.val, StatusOK
}

func (m *fakeMemtable) NumEntries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *fakeMemtable) NumDeletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.tomb {
			n++
		}
	}
	return n
}

func (m *fakeMemtable) GetEdits() ManifestEdit {
	if m.edits != nil {
		return m.edits
	}
	return fmt.Sprintf("edit(%d)", m.id)
}

// fakeMutex implements the Mutex contract over a plain sync.Mutex plus a
// held flag so tests can assert the install protocol actually releases
// it during "durable I/O".
type fakeMutex struct {
	mu   sync.Mutex
	held bool
}

func (m *fakeMutex) Lock() {
	m.mu.Lock()
	m.held = true
}

func (m *fakeMutex) Unlock() {
	m.held = false
	m.mu.Unlock()
}

func (m *fakeMutex) AssertHeld() {
	if !m.held {
		panic("fakeMutex: expected to be held")
	}
}

// fakeManifestWriter records every LogAndApply call and can be primed to
// fail the next N calls, simulating the manifest writer's durable I/O
// failing (spec §7 InstallIO).
type fakeManifestWriter struct {
	mu        sync.Mutex
	calls     [][]ManifestEdit
	failNext  int
	releasesMutex bool
}

func (w *fakeManifestWriter) LogAndApply(ctx context.Context, edits []ManifestEdit, mu Mutex) error {
	if w.releasesMutex {
		mu.Unlock()
		defer mu.Lock()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, edits)
	if w.failNext > 0 {
		w.failNext--
		return fmt.Errorf("simulated manifest I/O failure")
	}
	return nil
}
