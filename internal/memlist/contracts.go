// Package memlist implements the core of the engine: the immutable
// memtable list and its flush-coordination protocol (spec components
// C1-C4 — RefCounted handle, MemtableListVersion, MemtableList, and the
// flush-install bridge to the durable manifest).
//
// This package intentionally depends on nothing but the standard library.
// Every collaborator it needs (the memtable's own storage, the manifest
// writer, the caller's mutex) is expressed as a small interface so the
// core never talks to object storage, compression or WAL machinery
// directly — that wiring lives in internal/store, internal/memtable and
// the vidardb package.
package memlist

import "context"

// LookupStatus reports the outcome of a point lookup against a single
// memtable.
type LookupStatus int

const (
	// StatusAbsent means the key does not appear in this memtable at all.
	StatusAbsent LookupStatus = iota
	// StatusOK means a live value was found.
	StatusOK
	// StatusNotFound means a tombstone for the key was found (the key is
	// deleted as of the lookup sequence number).
	StatusNotFound
)

// ManifestEdit is an opaque manifest-edit descriptor produced by a
// memtable once its flush has materialized an SST file. The core never
// inspects its contents — it only batches edits in creation order and
// hands them to a ManifestWriter.
type ManifestEdit any

// Memtable is the opaque collaborator described in spec §3: an in-memory
// indexed set of (sequence, type, key, value) entries. The core only
// calls the read-only, flush-bookkeeping subset of its API — inserts are
// the active memtable's own business, out of scope for this package.
type Memtable interface {
	// ID returns the memtable's creation sequence number, strictly
	// increasing over the engine's lifetime.
	ID() uint64
	// Get performs a point lookup visible as of the given sequence
	// number, returning StatusAbsent if the key has no entry in this
	// memtable at or below seq.
	Get(lookupKey []byte, seq uint64) (value []byte, status LookupStatus)
	NumEntries() int
	NumDeletes() int
	// GetEdits returns the manifest-edit descriptor for this memtable's
	// flush output. Only valid to call once the external flush job has
	// materialized the memtable to disk (spec §4.4 step 1).
	GetEdits() ManifestEdit
}

// Mutex is the externally-provided DB-wide mutex every state-mutating
// operation in this package requires the caller to already hold (spec
// §5). AssertHeld is a debug-only check; production callers may make it
// a no-op.
type Mutex interface {
	Lock()
	Unlock()
	AssertHeld()
}

// ManifestWriter is the durable manifest writer (VersionSet in spec §6).
// LogAndApply may release and re-acquire mu while performing durable I/O;
// it must re-acquire mu before returning, success or failure.
type ManifestWriter interface {
	LogAndApply(ctx context.Context, edits []ManifestEdit, mu Mutex) error
}
