// Package compaction holds the sorted-run view of flushed SSTs (key
// lookup of the SST covering a key, and an iterator over a run's rows).
// It does not merge or rewrite SSTs itself. Adapted from the teacher's
// slatedb/compaction/sortedrun.go and slatedb/sortedrun.go to this
// engine's internal/store.TableStore and internal/manifest.Edit instead
// of the teacher's own (unretrieved) sstable package.
package compaction

import (
	"bytes"
	"context"
	"sort"

	"github.com/samber/mo"

	"github.com/vidardb/vidardb/internal/manifest"
	"github.com/vidardb/vidardb/internal/store"
	"github.com/vidardb/vidardb/internal/types"
)

// SSTHandle is the compaction layer's view of one SST: its object key
// plus the key range recorded against it in the manifest.
type SSTHandle struct {
	Key    string
	MinKey []byte
	MaxKey []byte
}

// SortedRun is a non-overlapping, key-ordered list of SSTs at one
// compaction level.
type SortedRun struct {
	ID      uint32
	SSTList []SSTHandle
}

func (s *SortedRun) indexOfSSTWithKey(key []byte) mo.Option[int] {
	index := sort.Search(len(s.SSTList), func(i int) bool {
		return bytes.Compare(s.SSTList[i].MinKey, key) > 0
	})
	if index > 0 {
		return mo.Some(index - 1)
	}
	return mo.None[int]()
}

func (s *SortedRun) SSTWithKey(key []byte) mo.Option[SSTHandle] {
	idx, ok := s.indexOfSSTWithKey(key).Get()
	if ok {
		return mo.Some(s.SSTList[idx])
	}
	return mo.None[SSTHandle]()
}

func (s *SortedRun) Clone() *SortedRun {
	sstList := make([]SSTHandle, len(s.SSTList))
	copy(sstList, s.SSTList)
	return &SortedRun{ID: s.ID, SSTList: sstList}
}

// EditsFromRun extracts the manifest edits that originally produced this
// run's SSTs, for replay/bookkeeping.
func EditsFromRun(s SortedRun, sizeBytes []uint64) []manifest.Edit {
	edits := make([]manifest.Edit, len(s.SSTList))
	for i, h := range s.SSTList {
		size := uint64(0)
		if i < len(sizeBytes) {
			size = sizeBytes[i]
		}
		edits[i] = manifest.Edit{Kind: manifest.KindCompaction, SSTKey: h.Key, MinKey: h.MinKey, MaxKey: h.MaxKey, SizeBytes: size}
	}
	return edits
}

// SortedRunIterator walks every row across a run's SSTs in key order,
// skipping tombstones when producing live KeyValue pairs, matching the
// teacher's SortedRunIterator.Next/NextEntry split.
type SortedRunIterator struct {
	tableStore  *store.TableStore
	sstListIter *sstListIterator
	rows        []types.RowEntry
	pos         int
	warn        types.ErrWarn
}

func NewSortedRunIterator(ctx context.Context, sr SortedRun, ts *store.TableStore) (*SortedRunIterator, error) {
	return newSortedRunIter(ctx, sr.SSTList, ts, mo.None[[]byte]())
}

func NewSortedRunIteratorFromKey(ctx context.Context, sr SortedRun, key []byte, ts *store.TableStore) (*SortedRunIterator, error) {
	sstList := sr.SSTList
	if idx, ok := sr.indexOfSSTWithKey(key).Get(); ok {
		sstList = sr.SSTList[idx:]
	}
	return newSortedRunIter(ctx, sstList, ts, mo.Some(key))
}

func newSortedRunIter(ctx context.Context, sstList []SSTHandle, ts *store.TableStore, fromKey mo.Option[[]byte]) (*SortedRunIterator, error) {
	it := &SortedRunIterator{tableStore: ts, sstListIter: newSSTListIterator(sstList)}
	if err := it.advanceSST(ctx); err != nil {
		return nil, err
	}
	if key, ok := fromKey.Get(); ok {
		it.seek(key)
	}
	return it, nil
}

func (it *SortedRunIterator) seek(key []byte) {
	for it.pos < len(it.rows) && bytes.Compare(it.rows[it.pos].Key, key) < 0 {
		it.pos++
	}
}

func (it *SortedRunIterator) advanceSST(ctx context.Context) error {
	for {
		sst, ok := it.sstListIter.Next()
		if !ok {
			it.rows = nil
			it.pos = 0
			return nil
		}
		rows, err := it.tableStore.ReadSST(ctx, sst.Key)
		if err != nil {
			it.warn.Add("while reading sst %s: %s", sst.Key, err.Error())
			continue
		}
		it.rows = rows
		it.pos = 0
		return nil
	}
}

// Next returns the next live key/value pair, skipping tombstones.
func (it *SortedRunIterator) Next(ctx context.Context) (types.KeyValue, bool) {
	for {
		e, ok := it.NextEntry(ctx)
		if !ok {
			return types.KeyValue{}, false
		}
		if e.Value.Type() == types.TypeDeletion {
			continue
		}
		return types.KeyValue{Key: e.Key, Value: e.Value.Value}, true
	}
}

// NextEntry returns the next row, tombstone or not.
func (it *SortedRunIterator) NextEntry(ctx context.Context) (types.RowEntry, bool) {
	for {
		if it.pos < len(it.rows) {
			e := it.rows[it.pos]
			it.pos++
			return e, true
		}
		if it.sstListIter.done() {
			return types.RowEntry{}, false
		}
		if err := it.advanceSST(ctx); err != nil {
			it.warn.Add("while advancing sst: %s", err.Error())
			return types.RowEntry{}, false
		}
	}
}

// Warnings returns non-fatal issues accumulated while iterating.
func (it *SortedRunIterator) Warnings() *types.ErrWarn { return &it.warn }

type sstListIterator struct {
	sstList []SSTHandle
	current int
}

func newSSTListIterator(sstList []SSTHandle) *sstListIterator {
	return &sstListIterator{sstList: sstList}
}

func (it *sstListIterator) Next() (SSTHandle, bool) {
	if it.current >= len(it.sstList) {
		return SSTHandle{}, false
	}
	sst := it.sstList[it.current]
	it.current++
	return sst, true
}

func (it *sstListIterator) done() bool { return it.current >= len(it.sstList) }
