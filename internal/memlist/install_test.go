package memlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallRejectsEmptyPicked(t *testing.T) {
	l := NewMemtableList(1, 0)
	mu := &fakeMutex{}
	mu.Lock()
	defer mu.Unlock()

	w := &fakeManifestWriter{}
	var toDelete []*Handle
	err := l.InstallMemtableFlushResults(context.Background(), mu, nil, w, &toDelete)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Empty(t, w.calls)
}

// TestInstallRejectsNotInProgress is scenario S8: a handle not marked
// flush_in_progress must be rejected.
func TestInstallRejectsNotInProgress(t *testing.T) {
	l := NewMemtableList(1, 0)
	mu := &fakeMutex{}
	mu.Lock()
	defer mu.Unlock()

	var toDelete []*Handle
	h := NewHandle(newFakeMemtable(1))
	l.Add(mu, h, &toDelete)

	w := &fakeManifestWriter{}
	err := l.InstallMemtableFlushResults(context.Background(), mu, []*Handle{h}, w, &toDelete)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Empty(t, w.calls)
}

func TestInstallSingleMemtableHappyPath(t *testing.T) {
	l := NewMemtableList(1, 1)
	mu := &fakeMutex{}
	mu.Lock()
	defer mu.Unlock()

	var toDelete []*Handle
	h := NewHandle(newFakeMemtable(1))
	l.Add(mu, h, &toDelete)
	picked := l.PickMemtablesToFlush(mu)
	require.Len(t, picked, 1)

	w := &fakeManifestWriter{}
	err := l.InstallMemtableFlushResults(context.Background(), mu, picked, w, &toDelete)
	require.NoError(t, err)
	require.Len(t, w.calls, 1)
	assert.Equal(t, []ManifestEdit{"edit(1)"}, w.calls[0])

	v := l.Current()
	defer v.Unref(&toDelete)
	assert.Empty(t, v.Unflushed())
	require.Len(t, v.History(), 1)
	assert.Equal(t, uint64(1), v.History()[0].ID())
}

// TestInstallWaitsForStraggler exercises step 3: a newer memtable's flush
// completes before an older one in the same unflushed queue, so the
// install must wait rather than commit out of creation order.
func TestInstallWaitsForStraggler(t *testing.T) {
	l := NewMemtableList(1, 0)
	mu := &fakeMutex{}
	mu.Lock()
	defer mu.Unlock()

	var toDelete []*Handle
	h1 := NewHandle(newFakeMemtable(1))
	h2 := NewHandle(newFakeMemtable(2))
	l.Add(mu, h1, &toDelete)
	l.Add(mu, h2, &toDelete)

	picked := l.PickMemtablesToFlush(mu)
	require.Len(t, picked, 2)

	w := &fakeManifestWriter{}
	// Only the newer memtable (h2) is ready; h1 is still in flight.
	err := l.InstallMemtableFlushResults(context.Background(), mu, []*Handle{h2}, w, &toDelete)
	require.NoError(t, err)
	assert.Empty(t, w.calls, "must not commit out of order")

	v := l.Current()
	require.Len(t, v.Unflushed(), 2, "nothing removed yet")
	v.Unref(&toDelete)

	// Now the straggler completes too: both should commit together,
	// oldest first.
	err = l.InstallMemtableFlushResults(context.Background(), mu, []*Handle{h1}, w, &toDelete)
	require.NoError(t, err)
	require.Len(t, w.calls, 1)
	assert.Equal(t, []ManifestEdit{"edit(1)", "edit(2)"}, w.calls[0])

	v2 := l.Current()
	defer v2.Unref(&toDelete)
	assert.Empty(t, v2.Unflushed())
}

func TestInstallFailureRollsBackCompletionFlag(t *testing.T) {
	l := NewMemtableList(1, 0)
	mu := &fakeMutex{}
	mu.Lock()
	defer mu.Unlock()

	var toDelete []*Handle
	h := NewHandle(newFakeMemtable(1))
	l.Add(mu, h, &toDelete)
	picked := l.PickMemtablesToFlush(mu)

	w := &fakeManifestWriter{failNext: 1}
	err := l.InstallMemtableFlushResults(context.Background(), mu, picked, w, &toDelete)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstallIO)
	assert.False(t, h.IsFlushCompleted())
	assert.True(t, h.IsFlushInProgress(), "still picked, caller may retry")

	v := l.Current()
	defer v.Unref(&toDelete)
	require.Len(t, v.Unflushed(), 1, "nothing committed")

	// Retry succeeds.
	err = l.InstallMemtableFlushResults(context.Background(), mu, picked, w, &toDelete)
	require.NoError(t, err)
	require.Len(t, w.calls, 2)
}

func TestInstallRejectsConcurrentCommit(t *testing.T) {
	l := NewMemtableList(1, 0)
	mu := &fakeMutex{}
	mu.Lock()
	defer mu.Unlock()

	var toDelete []*Handle
	h1 := NewHandle(newFakeMemtable(1))
	h2 := NewHandle(newFakeMemtable(2))
	l.Add(mu, h1, &toDelete)
	l.Add(mu, h2, &toDelete)
	picked := l.PickMemtablesToFlush(mu)

	w := &fakeManifestWriter{}
	l.commitInProgress = true
	err := l.InstallMemtableFlushResults(context.Background(), mu, picked, w, &toDelete)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestInstallReleasesMutexDuringIO(t *testing.T) {
	l := NewMemtableList(1, 0)
	mu := &fakeMutex{}
	mu.Lock()
	defer mu.Unlock()

	var toDelete []*Handle
	h := NewHandle(newFakeMemtable(1))
	l.Add(mu, h, &toDelete)
	picked := l.PickMemtablesToFlush(mu)

	w := &fakeManifestWriter{releasesMutex: true}
	err := l.InstallMemtableFlushResults(context.Background(), mu, picked, w, &toDelete)
	require.NoError(t, err)
	assert.True(t, mu.held, "mutex must be held again once LogAndApply returns")
}

// TestInstallHistoryWindowOrderingAndEviction exercises invariant (ii):
// history stays newest-first, and freshly flushed memtables evict the
// oldest entries once the window overflows.
func TestInstallHistoryWindowOrderingAndEviction(t *testing.T) {
	l := NewMemtableList(1, 2)
	mu := &fakeMutex{}
	mu.Lock()
	defer mu.Unlock()

	var toDelete []*Handle
	w := &fakeManifestWriter{}
	for _, id := range []uint64{1, 2, 3} {
		h := NewHandle(newFakeMemtable(id))
		l.Add(mu, h, &toDelete)
		picked := l.PickMemtablesToFlush(mu)
		require.NoError(t, l.InstallMemtableFlushResults(context.Background(), mu, picked, w, &toDelete))
	}

	v := l.Current()
	defer v.Unref(&toDelete)
	require.Len(t, v.History(), 2, "bounded to H=2")
	assert.Equal(t, uint64(3), v.History()[0].ID(), "newest first")
	assert.Equal(t, uint64(2), v.History()[1].ID())

	require.Len(t, toDelete, 1, "evicted memtable 1 has no more references")
	assert.Equal(t, uint64(1), toDelete[0].ID())
}
