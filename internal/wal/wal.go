// Package wal is the write-ahead log's active/immutable table pair,
// generalized from the teacher's slatedb/table/wal.go to sit in front of
// internal/memtable.Memtable instead of an unretrieved KVTable type.
package wal

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/samber/mo"

	"github.com/vidardb/vidardb/internal/memlist"
	"github.com/vidardb/vidardb/internal/memtable"
	"github.com/vidardb/vidardb/internal/types"
)

// WAL is the single mutable, append-only table writers hit directly.
type WAL struct {
	mu    sync.RWMutex
	table *memtable.Memtable
	seq   uint64
}

func New(id uint64) *WAL {
	return &WAL{table: memtable.New(id)}
}

func (w *WAL) Put(key, value []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	w.table.Put(key, value, w.seq)
}

func (w *WAL) Delete(key []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	w.table.Delete(key, w.seq)
}

func (w *WAL) Get(key []byte) mo.Option[types.ValueDeletable] {
	w.mu.RLock()
	defer w.mu.RUnlock()
	val, status := w.table.Get(key, w.seq)
	switch status {
	case memlist.StatusOK:
		return mo.Some(types.ValueDeletable{Value: val})
	case memlist.StatusNotFound:
		return mo.Some(types.ValueDeletable{IsTombstone: true})
	default:
		return mo.None[types.ValueDeletable]()
	}
}

func (w *WAL) IsEmpty() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.table.IsEmpty()
}

// Freeze turns this WAL's table into an ImmutableWAL and replaces it with
// a fresh, empty active table sharing the next sequence number.
func (w *WAL) Freeze(id uint64) *ImmutableWAL {
	w.mu.Lock()
	defer w.mu.Unlock()
	frozen := w.table
	frozen.Freeze()
	imm := &ImmutableWAL{id: id, table: frozen}
	w.table = memtable.New(id)
	return imm
}

// Table exposes the active memtable for the flush pipeline's sequence
// bookkeeping.
func (w *WAL) Table() *memtable.Memtable {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.table
}

// ImmutableWAL is a frozen, read-only WAL segment waiting to be merged
// into the active memtable.
type ImmutableWAL struct {
	id    uint64
	table *memtable.Memtable
}

func (iw *ImmutableWAL) ID() uint64               { return iw.id }
func (iw *ImmutableWAL) Table() *memtable.Memtable { return iw.table }

// Queue is the FIFO of immutable WAL segments awaiting flush, oldest at
// the front — the same "always take the head" access pattern as the
// teacher's flushImmWALs loop, backed by gammazero/deque for O(1)
// push-back/pop-front instead of a slice that reallocates on every pop.
type Queue struct {
	mu sync.Mutex
	dq deque.Deque[*ImmutableWAL]
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) PushBack(iw *ImmutableWAL) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dq.PushBack(iw)
}

// PopFront removes and returns the oldest immutable WAL, or nil if empty.
func (q *Queue) PopFront() *ImmutableWAL {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dq.Len() == 0 {
		return nil
	}
	return q.dq.PopFront()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dq.Len()
}

// Front returns the oldest immutable WAL without removing it, or nil.
func (q *Queue) Front() *ImmutableWAL {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dq.Len() == 0 {
		return nil
	}
	return q.dq.Front()
}

// Segments returns every queued immutable WAL, oldest-first, without
// removing any of them — used by reads that must scan the whole queue
// instead of only draining its head.
func (q *Queue) Segments() []*ImmutableWAL {
	q.mu.Lock()
	defer q.mu.Unlock()
	segs := make([]*ImmutableWAL, q.dq.Len())
	for i := 0; i < q.dq.Len(); i++ {
		segs[i] = q.dq.At(i)
	}
	return segs
}

// Get scans every queued segment oldest-first and returns the most recent
// hit (a segment pushed later shadows one pushed earlier, the same
// newest-wins rule the memlist core applies to its own queues), or
// mo.None if no segment has an entry for key.
func (q *Queue) Get(key []byte) mo.Option[types.ValueDeletable] {
	segs := q.Segments()
	result := mo.None[types.ValueDeletable]()
	for _, seg := range segs {
		val, status := seg.table.Get(key, ^uint64(0))
		switch status {
		case memlist.StatusOK:
			result = mo.Some(types.ValueDeletable{Value: val})
		case memlist.StatusNotFound:
			result = mo.Some(types.ValueDeletable{IsTombstone: true})
		}
	}
	return result
}
