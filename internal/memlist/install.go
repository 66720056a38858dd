package memlist

import (
	"context"
	"fmt"
)

// InstallMemtableFlushResults is the flush-install bridge (C4): it
// mediates between MemtableList and the durable manifest writer to
// commit flush results atomically and in strict memtable-creation order
// (spec §4.4).
//
// Preconditions (enforced): mu is held by the caller, every element of
// picked has flush_in_progress set, and no install is already in flight.
// picked must be non-empty. The order of picked is not checked and does
// not matter: the batch is built from the unflushed queue itself.
//
// The protocol:
//  1. Mark every element of picked flush_completed and record its
//     manifest-edit descriptor.
//  2. Starting from the oldest memtable in the entire unflushed queue,
//     walk forward while the next memtable is flush_completed,
//     accumulating a batch.
//  3. If the batch is empty the oldest unflushed memtable is still
//     in flight elsewhere; return success without touching the manifest
//     writer — the completed memtables from picked simply wait.
//  4. Otherwise hand the batch to writer.LogAndApply. This call may
//     release and re-acquire mu while it performs durable I/O.
//  5. On success, remove the batch from unflushed, move each member into
//     history (bounded to H, evicting the oldest entries as needed) or
//     drop it immediately if history is disabled (H = 0).
//  6. On failure, mark the batch flush_completed = false and leave
//     everything else untouched; the caller must retry the install or
//     explicitly roll the picked set back.
func (l *MemtableList) InstallMemtableFlushResults(
	ctx context.Context,
	mu Mutex,
	picked []*Handle,
	writer ManifestWriter,
	toDelete *[]*Handle,
) error {
	mu.AssertHeld()

	if len(picked) == 0 {
		return fmt.Errorf("%w: empty picked set", ErrPrecondition)
	}
	for _, h := range picked {
		if !h.IsFlushInProgress() {
			return fmt.Errorf("%w: memtable %d is not flush_in_progress", ErrPrecondition, h.ID())
		}
	}
	if l.commitInProgress {
		return fmt.Errorf("%w: install already in progress", ErrPrecondition)
	}
	l.commitInProgress = true

	// Step 1: mark completed and record edits.
	for _, h := range picked {
		h.setFlushCompleted(true)
		h.setEdits(h.mt.GetEdits())
	}

	// Step 2: accumulate the maximal completed prefix starting from the
	// oldest memtable in the whole unflushed queue, not just from picked
	// — a straggler elsewhere in the queue must still block the batch.
	v := l.current.Load()
	var batch []*Handle
	for i := len(v.unflushed) - 1; i >= 0; i-- {
		h := v.unflushed[i]
		if !h.IsFlushCompleted() {
			break
		}
		batch = append(batch, h)
	}

	// Step 3: nothing ready to commit yet.
	if len(batch) == 0 {
		l.commitInProgress = false
		l.recomputeImmFlushNeeded()
		return nil
	}

	edits := make([]ManifestEdit, 0, len(batch))
	for _, h := range batch {
		edits = append(edits, h.Edits())
	}

	// Step 4: durable I/O, which may release and re-acquire mu.
	err := writer.LogAndApply(ctx, edits, mu)

	if err != nil {
		// Step 6: rollback just the completion flag; the caller owns
		// retry policy (spec §7: "Errors recovered locally: none").
		for _, h := range batch {
			h.setFlushCompleted(false)
		}
		l.commitInProgress = false
		l.recomputeImmFlushNeeded()
		return fmt.Errorf("%w: %w", ErrInstallIO, err)
	}

	// Step 5: commit — remove the batch from unflushed, fold it into
	// history (bounded to H), and let the generic publish/Unref-old
	// mechanism reconcile every handle's refcount: anything present in
	// the old version but absent from the successor (a removed-and-not-
	// retained memtable, or a history entry evicted by TrimHistory)
	// drops its reference once the old version itself is unreferenced.
	inBatch := make(map[uint64]bool, len(batch))
	for _, h := range batch {
		inBatch[h.ID()] = true
	}

	newUnflushed := make([]*Handle, 0, len(v.unflushed)-len(batch))
	for _, h := range v.unflushed {
		if !inBatch[h.ID()] {
			newUnflushed = append(newUnflushed, h)
		}
	}

	var newHistory []*Handle
	if l.maxWriteBufferNumberToMaintain > 0 {
		// batch is oldest-first; reverse it to newest-first and place it
		// ahead of the existing (already newest-first) history so the
		// overall ordering invariant (ii) holds.
		newHistory = make([]*Handle, 0, len(batch)+len(v.history))
		for i := len(batch) - 1; i >= 0; i-- {
			newHistory = append(newHistory, batch[i])
		}
		newHistory = append(newHistory, v.history...)
		if len(newHistory) > int(l.maxWriteBufferNumberToMaintain) {
			// Evict the oldest (tail) entries beyond the window. These
			// handles are simply omitted from the successor; the generic
			// publish/Unref-old mechanism below reconciles their
			// refcount once the old version is released.
			newHistory = newHistory[:l.maxWriteBufferNumberToMaintain]
		}
	}

	successor := newVersion(newUnflushed, newHistory)
	l.publish(successor, toDelete)
	l.commitInProgress = false
	l.recomputeImmFlushNeeded()
	return nil
}
