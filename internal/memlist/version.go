package memlist

import "sync/atomic"

// Version is the MemtableListVersion (C2): an immutable snapshot of the
// unflushed queue and the post-flush history window. Versions are never
// mutated after construction (spec §3 invariant iv); every state change
// in MemtableList constructs a successor and atomically publishes it.
//
// Version is itself refcounted: constructing one Refs every handle it
// carries, and Unref-ing the version (once its own refcount reaches
// zero) Unrefs every handle it carries in turn. This is what lets a
// reader hold a stable snapshot — via MemtableList.Current — without
// ever taking the DB mutex, while guaranteeing no handle it references
// is torn down until every holder (the list itself, plus any reader
// that grabbed it before the list moved on) has released it.
type Version struct {
	refs atomic.Int32

	// unflushed holds memtables not yet installed into the manifest,
	// newest-first (index 0 is the most recently added memtable).
	unflushed []*Handle
	// history holds already-flushed memtables retained for low-latency
	// reads, newest-first, bounded to maxWriteBufferNumberToMaintain.
	history []*Handle
}

func newVersion(unflushed, history []*Handle) *Version {
	v := &Version{unflushed: unflushed, history: history}
	v.refs.Store(1)
	for _, h := range unflushed {
		h.Ref()
	}
	for _, h := range history {
		h.Ref()
	}
	return v
}

// Ref takes out an additional reference on the version, keeping every
// handle it carries alive regardless of what the MemtableList does next.
func (v *Version) Ref() { v.refs.Add(1) }

// Unref releases a reference. Once the last reference is dropped, every
// handle the version carries is itself unreferenced, appending any that
// reach zero to toDelete.
func (v *Version) Unref(toDelete *[]*Handle) {
	if v.refs.Add(-1) != 0 {
		return
	}
	for _, h := range v.unflushed {
		h.Unref(toDelete)
	}
	for _, h := range v.history {
		h.Unref(toDelete)
	}
}

// Unflushed returns the newest-first unflushed queue. The returned slice
// must not be mutated by the caller.
func (v *Version) Unflushed() []*Handle { return v.unflushed }

// History returns the newest-first flushed-and-retained queue. The
// returned slice must not be mutated by the caller.
func (v *Version) History() []*Handle { return v.history }

// Get scans unflushed newest-first and returns the first memtable's
// answer that is not StatusAbsent — a live value or a tombstone both
// count as a hit, since the newest entry for a key always shadows older
// ones (spec §4.2).
func (v *Version) Get(lookupKey []byte, seq uint64) (value []byte, status LookupStatus, found bool) {
	return scanNewestFirst(v.unflushed, lookupKey, seq)
}

// GetFromHistory applies the same rule against the history window only.
func (v *Version) GetFromHistory(lookupKey []byte, seq uint64) (value []byte, status LookupStatus, found bool) {
	return scanNewestFirst(v.history, lookupKey, seq)
}

func scanNewestFirst(handles []*Handle, key []byte, seq uint64) ([]byte, LookupStatus, bool) {
	for _, h := range handles {
		val, status := h.mt.Get(key, seq)
		if status != StatusAbsent {
			return val, status, true
		}
	}
	return nil, StatusAbsent, false
}

// AddMemtable returns a successor version with h prepended to unflushed.
// It does not mutate v or touch any handle's refcount beyond the Ref
// every handle in the successor receives on construction; reconciling
// v's own reference is the caller's job once the successor is published
// (see MemtableList.Add).
func (v *Version) AddMemtable(h *Handle) *Version {
	unflushed := make([]*Handle, 0, len(v.unflushed)+1)
	unflushed = append(unflushed, h)
	unflushed = append(unflushed, v.unflushed...)
	return newVersion(unflushed, cloneHandles(v.history))
}

// Remove returns a successor with h removed from unflushed. Used only by
// the install path once h's flush has been committed to the manifest.
func (v *Version) Remove(h *Handle) *Version {
	unflushed := make([]*Handle, 0, len(v.unflushed))
	for _, e := range v.unflushed {
		if e != h {
			unflushed = append(unflushed, e)
		}
	}
	return newVersion(unflushed, cloneHandles(v.history))
}

// TrimHistory returns a successor whose history window holds at most
// maxH entries, evicting from the tail (oldest) as needed, and the list
// of evicted handles for the caller's records (their refcount drop is
// reconciled, as with AddMemtable/Remove, once this successor replaces
// v and v itself is unreferenced).
func (v *Version) TrimHistory(maxH int) (successor *Version, evicted []*Handle) {
	if maxH < 0 || len(v.history) <= maxH {
		return newVersion(cloneHandles(v.unflushed), cloneHandles(v.history)), nil
	}
	kept := append([]*Handle{}, v.history[:maxH]...)
	evicted = append([]*Handle{}, v.history[maxH:]...)
	return newVersion(cloneHandles(v.unflushed), kept), evicted
}

func cloneHandles(src []*Handle) []*Handle {
	if len(src) == 0 {
		return nil
	}
	dst := make([]*Handle, len(src))
	copy(dst, src)
	return dst
}
