// Package manifest defines the durable manifest-edit wire format: the
// ManifestEdit descriptors the core batches in creation order and hands
// to a ManifestWriter (spec §4.4, §6). Encoding follows the same
// flatbuffers Builder/Table idiom the teacher's go.mod pulls in
// (github.com/google/flatbuffers) for its own SST/manifest format; no
// .fbs schema compiler is available here, so the accessor types below
// are written by hand in the shape flatc itself would generate.
package manifest

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// Kind distinguishes the handful of durable state transitions a flush or
// compaction can record against the manifest.
type Kind byte

const (
	KindAddMemtable Kind = iota
	KindRemoveMemtable
	KindCompaction
)

// Edit is one durable state transition: a memtable flush records
// KindAddMemtable with the SST it produced; a compaction records
// KindCompaction with the merged output's key range.
type Edit struct {
	Kind       Kind
	MemtableID uint64
	SSTKey     string
	SizeBytes  uint64
	MinKey     []byte
	MaxKey     []byte
}

// vtable field indices for the Edit table.
const (
	editFieldKind = iota
	editFieldMemtableID
	editFieldSSTKey
	editFieldSizeBytes
	editFieldMinKey
	editFieldMaxKey
	editNumFields
)

// vtable field indices for the root EditBatch table.
const (
	batchFieldEdits = iota
	batchNumFields
)

func vtableOffset(field int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(4 + 2*field)
}

func buildEdit(b *flatbuffers.Builder, e Edit) flatbuffers.UOffsetT {
	sstKeyOff := b.CreateString(e.SSTKey)

	var minOff, maxOff flatbuffers.UOffsetT
	if e.MinKey != nil {
		minOff = b.CreateByteVector(e.MinKey)
	}
	if e.MaxKey != nil {
		maxOff = b.CreateByteVector(e.MaxKey)
	}

	b.StartObject(editNumFields)
	b.PrependByteSlot(editFieldKind, byte(e.Kind), 0)
	b.PrependUint64Slot(editFieldMemtableID, e.MemtableID, 0)
	b.PrependUOffsetTSlot(editFieldSSTKey, sstKeyOff, 0)
	b.PrependUint64Slot(editFieldSizeBytes, e.SizeBytes, 0)
	if e.MinKey != nil {
		b.PrependUOffsetTSlot(editFieldMinKey, minOff, 0)
	}
	if e.MaxKey != nil {
		b.PrependUOffsetTSlot(editFieldMaxKey, maxOff, 0)
	}
	return b.EndObject()
}

// EncodeEdits serializes a batch of edits as a single flatbuffer, the
// unit appended to the durable manifest log by internal/store.VersionSet.
func EncodeEdits(edits []Edit) []byte {
	b := flatbuffers.NewBuilder(64 + 64*len(edits))

	offsets := make([]flatbuffers.UOffsetT, len(edits))
	for i, e := range edits {
		offsets[i] = buildEdit(b, e)
	}

	b.StartVector(flatbuffers.SizeUOffsetT, len(offsets), flatbuffers.SizeUOffsetT)
	for i := len(offsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	vecOff := b.EndVector(len(offsets))

	b.StartObject(batchNumFields)
	b.PrependUOffsetTSlot(batchFieldEdits, vecOff, 0)
	batchOff := b.EndObject()

	b.Finish(batchOff)
	return b.FinishedBytes()
}

// editTable is the hand-written accessor flatc would otherwise generate
// for the Edit table.
type editTable struct{ tab flatbuffers.Table }

func (t *editTable) init(buf []byte, pos flatbuffers.UOffsetT) { t.tab.Bytes = buf; t.tab.Pos = pos }

func (t *editTable) kind() Kind {
	o := t.tab.Offset(vtableOffset(editFieldKind))
	if o == 0 {
		return KindAddMemtable
	}
	return Kind(t.tab.GetByte(t.tab.Pos + flatbuffers.UOffsetT(o)))
}

func (t *editTable) memtableID() uint64 {
	o := t.tab.Offset(vtableOffset(editFieldMemtableID))
	if o == 0 {
		return 0
	}
	return t.tab.GetUint64(t.tab.Pos + flatbuffers.UOffsetT(o))
}

func (t *editTable) sstKey() string {
	o := t.tab.Offset(vtableOffset(editFieldSSTKey))
	if o == 0 {
		return ""
	}
	return string(t.tab.ByteVector(t.tab.Pos + flatbuffers.UOffsetT(o)))
}

func (t *editTable) sizeBytes() uint64 {
	o := t.tab.Offset(vtableOffset(editFieldSizeBytes))
	if o == 0 {
		return 0
	}
	return t.tab.GetUint64(t.tab.Pos + flatbuffers.UOffsetT(o))
}

func (t *editTable) minKey() []byte {
	o := t.tab.Offset(vtableOffset(editFieldMinKey))
	if o == 0 {
		return nil
	}
	return t.tab.ByteVector(t.tab.Pos + flatbuffers.UOffsetT(o))
}

func (t *editTable) maxKey() []byte {
	o := t.tab.Offset(vtableOffset(editFieldMaxKey))
	if o == 0 {
		return nil
	}
	return t.tab.ByteVector(t.tab.Pos + flatbuffers.UOffsetT(o))
}

func (t *editTable) toEdit() Edit {
	return Edit{
		Kind:       t.kind(),
		MemtableID: t.memtableID(),
		SSTKey:     t.sstKey(),
		SizeBytes:  t.sizeBytes(),
		MinKey:     t.minKey(),
		MaxKey:     t.maxKey(),
	}
}

type editBatchTable struct{ tab flatbuffers.Table }

func (b *editBatchTable) init(buf []byte) {
	n := flatbuffers.GetUOffsetT(buf)
	b.tab.Bytes = buf
	b.tab.Pos = n
}

func (b *editBatchTable) editsLength() int {
	o := b.tab.Offset(vtableOffset(batchFieldEdits))
	if o == 0 {
		return 0
	}
	return b.tab.VectorLen(b.tab.Pos + flatbuffers.UOffsetT(o))
}

func (b *editBatchTable) edit(j int) *editTable {
	o := b.tab.Offset(vtableOffset(batchFieldEdits))
	if o == 0 {
		return nil
	}
	x := b.tab.Vector(b.tab.Pos + flatbuffers.UOffsetT(o))
	x += flatbuffers.UOffsetT(j) * flatbuffers.SizeUOffsetT
	x = b.tab.Indirect(x)
	et := &editTable{}
	et.init(b.tab.Bytes, x)
	return et
}

// DecodeEdits deserializes a batch produced by EncodeEdits.
func DecodeEdits(buf []byte) ([]Edit, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	var batch editBatchTable
	batch.init(buf)

	n := batch.editsLength()
	edits := make([]Edit, n)
	for i := 0; i < n; i++ {
		edits[i] = batch.edit(i).toEdit()
	}
	return edits, nil
}
