package memlist

import "sync/atomic"

// Handle is the RefCounted memtable handle (C1): a shared-ownership
// wrapper over a Memtable, with atomic refcounting and a deferred-
// destruction protocol. The core never frees a Memtable itself — when a
// Handle's refcount reaches zero it is appended to the caller-supplied
// deferred-delete slice so destructors run outside any critical section.
type Handle struct {
	mt   Memtable
	refs atomic.Int32

	flushInProgress atomic.Bool
	flushCompleted  atomic.Bool

	edits atomic.Value // holds editsBox once a flush completes
}

type editsBox struct{ edit ManifestEdit }

// NewHandle wraps mt with a zero refcount: the handle is unowned until it
// is carried by a Version, which happens the moment it is passed to
// MemtableList.Add (via Version.AddMemtable, which Refs every handle the
// successor version carries).
func NewHandle(mt Memtable) *Handle {
	return &Handle{mt: mt}
}

func (h *Handle) ID() uint64        { return h.mt.ID() }
func (h *Handle) Memtable() Memtable { return h.mt }

// Ref increments the handle's refcount. Called whenever a new
// MemtableListVersion is constructed that carries this handle.
func (h *Handle) Ref() { h.refs.Add(1) }

// Unref decrements the handle's refcount. If the count reaches zero the
// handle is appended to toDelete (when non-nil) for the caller to
// destroy outside the lock; Unref itself never destroys anything.
func (h *Handle) Unref(toDelete *[]*Handle) {
	if h.refs.Add(-1) == 0 && toDelete != nil {
		*toDelete = append(*toDelete, h)
	}
}

// RefCount reports the current refcount, exposed so tests can assert
// ownership transfer (spec §4.1).
func (h *Handle) RefCount() int32 { return h.refs.Load() }

func (h *Handle) IsFlushInProgress() bool   { return h.flushInProgress.Load() }
func (h *Handle) setFlushInProgress(v bool) { h.flushInProgress.Store(v) }

func (h *Handle) IsFlushCompleted() bool   { return h.flushCompleted.Load() }
func (h *Handle) setFlushCompleted(v bool) { h.flushCompleted.Store(v) }

func (h *Handle) setEdits(e ManifestEdit) { h.edits.Store(editsBox{e}) }

// Edits returns the manifest-edit descriptor recorded against this
// handle during InstallMemtableFlushResults step 1. It is nil until then.
func (h *Handle) Edits() ManifestEdit {
	v := h.edits.Load()
	if v == nil {
		return nil
	}
	return v.(editsBox).edit
}
