// Package memtable is the concrete, skiplist-backed Memtable (spec §3's
// opaque in-memory indexed entry set) plumbed into internal/memlist's
// Handle. It also backs the write-ahead log's active/immutable tables,
// the same way the teacher's slatedb/table.KVTable underlies both its WAL
// and its memtable.
package memtable

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/huandu/skiplist"
	"github.com/samber/mo"

	"github.com/vidardb/vidardb/internal/types"
)

// versionedEntry is one (seq, value-or-tombstone) pair kept per key, in
// arrival order (the most recent write last).
type versionedEntry struct {
	seq   uint64
	value types.ValueDeletable
}

// Table is an ordered, MVCC-aware key index: every Put/Delete appends a
// new version rather than overwriting, so Get can answer point lookups
// "as of" any sequence number the unflushed queue's readers ask for.
type Table struct {
	mu   sync.RWMutex
	list *skiplist.SkipList

	size       atomic.Int64
	numEntries atomic.Int64
	numDeletes atomic.Int64
}

func bytesCompare(a, b any) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

func newTable() *Table {
	return &Table{list: skiplist.New(skiplist.GreaterThanFunc(bytesCompare))}
}

// put records a live value at seq, appended after the key's earlier
// versions.
func (t *Table) put(key, value []byte, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(key, types.ValueDeletable{Value: value}, seq)
	t.size.Add(int64(len(key) + len(value)))
	t.numEntries.Add(1)
}

// delete records a tombstone at seq.
func (t *Table) delete(key []byte, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertLocked(key, types.ValueDeletable{IsTombstone: true}, seq)
	t.size.Add(int64(len(key)))
	t.numEntries.Add(1)
	t.numDeletes.Add(1)
}

func (t *Table) insertLocked(key []byte, v types.ValueDeletable, seq uint64) {
	versions, _ := t.versionsLocked(key)
	versions = append(versions, versionedEntry{seq: seq, value: v})
	t.list.Set(append([]byte(nil), key...), versions)
}

func (t *Table) versionsLocked(key []byte) ([]versionedEntry, bool) {
	elem := t.list.Get(key)
	if elem == nil {
		return nil, false
	}
	return elem.Value.([]versionedEntry), true
}

// get returns the live-or-tombstone value visible as of seq, or an empty
// Option if the key has no entry at or below seq.
func (t *Table) get(key []byte, seq uint64) mo.Option[types.ValueDeletable] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	versions, ok := t.versionsLocked(key)
	if !ok {
		return mo.None[types.ValueDeletable]()
	}
	// Versions are appended in arrival order; scan back-to-front for the
	// newest entry at or below seq.
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].seq <= seq {
			return mo.Some(versions[i].value)
		}
	}
	return mo.None[types.ValueDeletable]()
}

func (t *Table) isEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.list.Len() == 0
}

func (t *Table) clone() *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := newTable()
	for elem := t.list.Front(); elem != nil; elem = elem.Next() {
		key := elem.Key().([]byte)
		versions := elem.Value.([]versionedEntry)
		cloned := append([]versionedEntry(nil), versions...)
		out.list.Set(key, cloned)
	}
	out.size.Store(t.size.Load())
	out.numEntries.Store(t.numEntries.Load())
	out.numDeletes.Store(t.numDeletes.Load())
	return out
}

// Iterator walks the table in key order, yielding the newest version at
// or below a fixed ceiling sequence number.
type Iterator struct {
	elem *skiplist.Element
	seq  uint64
}

func (t *Table) iter(seq uint64) *Iterator {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Iterator{elem: t.list.Front(), seq: seq}
}

// Next advances the iterator, skipping keys with no version visible at or
// below the iterator's ceiling sequence number.
func (it *Iterator) Next() (types.RowEntry, bool) {
	for it.elem != nil {
		key := it.elem.Key().([]byte)
		versions := it.elem.Value.([]versionedEntry)
		it.elem = it.elem.Next()

		var best *versionedEntry
		for i := len(versions) - 1; i >= 0; i-- {
			if versions[i].seq <= it.seq {
				best = &versions[i]
				break
			}
		}
		if best == nil {
			continue
		}
		return types.RowEntry{Key: key, Value: best.value, Seq: best.seq}, true
	}
	return types.RowEntry{}, false
}
