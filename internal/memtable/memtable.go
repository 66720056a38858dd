package memtable

import (
	"sync/atomic"

	"github.com/vidardb/vidardb/internal/memlist"
	"github.com/vidardb/vidardb/internal/types"
)

// Memtable is the concrete, mutable active/immutable memtable that backs
// a memlist.Handle. It is mutable only while active (see Freeze); once
// frozen it is only ever read and flushed, matching spec §3's "active
// memtable is never shared, immutable memtables are shared read-only".
type Memtable struct {
	id     uint64
	table  *Table
	frozen atomic.Bool
	edits  atomic.Value // holds memlist.ManifestEdit once a flush completes
}

// New constructs an empty, active memtable with the given creation id.
// Ids must be assigned in strictly increasing order by the caller (spec
// §3 invariant i).
func New(id uint64) *Memtable {
	return &Memtable{id: id, table: newTable()}
}

func (m *Memtable) ID() uint64 { return m.id }

// Put inserts a live value. Panics if the memtable has been frozen, the
// same contract the teacher's WAL enforces implicitly by only ever being
// mutated through the active WAL reference.
func (m *Memtable) Put(key, value []byte, seq uint64) {
	if m.frozen.Load() {
		panic("memtable: Put on a frozen memtable")
	}
	m.table.put(key, value, seq)
}

func (m *Memtable) Delete(key []byte, seq uint64) {
	if m.frozen.Load() {
		panic("memtable: Delete on a frozen memtable")
	}
	m.table.delete(key, seq)
}

// Freeze marks the memtable read-only. Called once, when the memtable
// moves from "active" to "immutable" (the moment it is wrapped in a
// memlist.Handle and passed to MemtableList.Add).
func (m *Memtable) Freeze() { m.frozen.Store(true) }

func (m *Memtable) IsEmpty() bool { return m.table.isEmpty() }

// Get implements memlist.Memtable: it adapts the table's mo.Option result
// into the core's LookupStatus vocabulary.
func (m *Memtable) Get(lookupKey []byte, seq uint64) ([]byte, memlist.LookupStatus) {
	opt := m.table.get(lookupKey, seq)
	v, ok := opt.Get()
	if !ok {
		return nil, memlist.StatusAbsent
	}
	if v.IsDeleted() {
		return nil, memlist.StatusNotFound
	}
	return v.Value, memlist.StatusOK
}

func (m *Memtable) NumEntries() int { return int(m.table.numEntries.Load()) }
func (m *Memtable) NumDeletes() int { return int(m.table.numDeletes.Load()) }
func (m *Memtable) SizeBytes() int64 { return m.table.size.Load() }

// SetEdits records the manifest-edit descriptor produced once this
// memtable's flush has materialized an SST (spec §4.4 step 1). Calling
// GetEdits before SetEdits returns nil.
func (m *Memtable) SetEdits(e memlist.ManifestEdit) { m.edits.Store(editsBox{e}) }

type editsBox struct{ edit memlist.ManifestEdit }

func (m *Memtable) GetEdits() memlist.ManifestEdit {
	v := m.edits.Load()
	if v == nil {
		return nil
	}
	return v.(editsBox).edit
}

// Iter returns a row iterator over every key visible at or below seq, in
// key order, used by the flush pipeline to materialize an SST and by
// range scans against the active memtable.
func (m *Memtable) Iter(seq uint64) *Iterator { return m.table.iter(seq) }

// Clone returns a deep, independent copy with the same id. The copy is
// not frozen, whatever the state of the original.
func (m *Memtable) Clone() *Memtable {
	return &Memtable{id: m.id, table: m.table.clone()}
}

var _ memlist.Memtable = (*Memtable)(nil)

// KeyValueOf converts a RowEntry produced by Iter into the live KeyValue
// pair callers expect, returning ok=false for tombstones.
func KeyValueOf(e types.RowEntry) (types.KeyValue, bool) {
	if e.Value.IsDeleted() {
		return types.KeyValue{}, false
	}
	return types.KeyValue{Key: e.Key, Value: e.Value.Value}, true
}
