package memlist

import "sync/atomic"

// MemtableList is the mutable façade (C3): it owns the current Version,
// the flush state machine, the history retention policy, and the
// installation ordering guarantee. Every exported method here requires
// the caller to already hold the DB-wide mutex (spec §5); none of them
// take an internal lock of their own, except where noted.
type MemtableList struct {
	current atomic.Pointer[Version]

	// minWriteBufferNumberToMerge is M: the number of not-yet-picked
	// memtables that triggers automatic flush-pending.
	minWriteBufferNumberToMerge uint32
	// maxWriteBufferNumberToMaintain is H: the history retention window.
	// Zero disables history.
	maxWriteBufferNumberToMaintain uint32

	numFlushNotStarted int
	flushRequested     bool
	commitInProgress   bool

	// immFlushNeeded is the externally-observable advisory hint from
	// spec §5: published with release semantics here, read with acquire
	// semantics by background schedulers via ImmFlushNeeded, without
	// ever taking the DB mutex.
	immFlushNeeded atomic.Bool
}

// NewMemtableList constructs an empty list. minToMerge is M, maxToMaintain
// is H (spec §3).
func NewMemtableList(minToMerge, maxToMaintain uint32) *MemtableList {
	l := &MemtableList{
		minWriteBufferNumberToMerge:    minToMerge,
		maxWriteBufferNumberToMaintain: maxToMaintain,
	}
	l.current.Store(newVersion(nil, nil))
	return l
}

// Current returns the live Version, taking out a reference on behalf of
// the caller. The caller must Unref it (into its own deferred-delete
// slice, or nil if it has none) once done reading.
func (l *MemtableList) Current() *Version {
	v := l.current.Load()
	v.Ref()
	return v
}

// ImmFlushNeeded reports the advisory hint a background scheduler can
// poll without taking the DB mutex. The authoritative predicate is
// IsFlushPending, which requires the mutex.
func (l *MemtableList) ImmFlushNeeded() bool { return l.immFlushNeeded.Load() }

func (l *MemtableList) recomputeImmFlushNeeded() {
	v := l.current.Load()
	needed := l.numFlushNotStarted > 0 || (l.flushRequested && len(v.unflushed) > 0)
	l.immFlushNeeded.Store(needed)
}

// publish installs successor as the current version and releases the
// predecessor's reference, reconciling the refcount of every handle that
// dropped out of scope into toDelete.
func (l *MemtableList) publish(successor *Version, toDelete *[]*Handle) {
	old := l.current.Swap(successor)
	old.Unref(toDelete)
}

// Add prepends h to the unflushed queue (spec §4.3). Any handle whose
// refcount drops to zero as a side effect (never the case for a plain
// Add, but kept symmetric with the rest of the API) is appended to
// toDelete.
func (l *MemtableList) Add(mu Mutex, h *Handle, toDelete *[]*Handle) {
	mu.AssertHeld()

	v := l.current.Load()
	successor := v.AddMemtable(h)
	l.numFlushNotStarted++
	l.publish(successor, toDelete)
	l.recomputeImmFlushNeeded()
}

// FlushRequested latches a user-requested flush. A request made against
// an empty list is retained but does not itself make a flush pending
// (spec §4.3, S6).
func (l *MemtableList) FlushRequested(mu Mutex) {
	mu.AssertHeld()
	l.flushRequested = true
	l.recomputeImmFlushNeeded()
}

// IsFlushPending is the authoritative predicate (spec §4.3, §8 property
// 5): true iff the unflushed queue is non-empty AND either the
// not-started count has reached M or a flush was explicitly requested.
// An explicit request alone is enough, even when every unflushed
// memtable has already been picked.
func (l *MemtableList) IsFlushPending(mu Mutex) bool {
	mu.AssertHeld()
	if l.numFlushNotStarted == 0 && !l.flushRequested {
		return false
	}
	v := l.current.Load()
	if len(v.unflushed) == 0 {
		return false
	}
	return l.numFlushNotStarted >= int(l.minWriteBufferNumberToMerge) || l.flushRequested
}

// PickMemtablesToFlush chooses the oldest contiguous run of unflushed
// memtables not already flush_in_progress, marks them in-progress, and
// returns them oldest-first (spec §4.3). In-progress memtables at the
// oldest end (claimed by an earlier pick) are skipped; the run ends at
// the next in-progress memtable after it. It never picks
// a memtable a concurrent pick has already claimed, since the
// flush_in_progress flag is the synchronization token and both calls are
// serialized by the caller-held DB mutex.
func (l *MemtableList) PickMemtablesToFlush(mu Mutex) []*Handle {
	mu.AssertHeld()

	v := l.current.Load()
	var picked []*Handle
	for i := len(v.unflushed) - 1; i >= 0; i-- {
		h := v.unflushed[i]
		if h.IsFlushInProgress() {
			if len(picked) > 0 {
				break
			}
			continue
		}
		picked = append(picked, h)
	}

	for _, h := range picked {
		h.setFlushInProgress(true)
		h.setFlushCompleted(false)
	}

	l.flushRequested = false
	l.numFlushNotStarted -= len(picked)
	l.recomputeImmFlushNeeded()
	return picked
}

// RollbackMemtableFlush is the only cancellation primitive: it clears
// flush_in_progress on every element of picked and restores
// num_flush_not_started, used when the external flush job fails before
// producing a flushable artifact.
//
// imm_flush_needed is recomputed unconditionally here even though
// IsFlushPending is the authoritative predicate under the mutex — the
// two can disagree momentarily, which is by design (spec §9 Open
// Questions): imm_flush_needed is an advisory hint for schedulers that
// do not want to pay for the mutex just to find nothing to do.
func (l *MemtableList) RollbackMemtableFlush(mu Mutex, picked []*Handle) {
	mu.AssertHeld()
	for _, h := range picked {
		h.setFlushInProgress(false)
	}
	l.numFlushNotStarted += len(picked)
	l.recomputeImmFlushNeeded()
}

// NumNotFlushed returns the size of the current unflushed queue.
func (l *MemtableList) NumNotFlushed() int { return len(l.current.Load().unflushed) }

// NumFlushed returns the size of the current history window.
func (l *MemtableList) NumFlushed() int { return len(l.current.Load().history) }
