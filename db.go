// Package vidardb is the public façade over the engine: Open, Put, Get,
// Delete, Close, FlushWAL and FlushMemtableToL0, generalized from the
// teacher's slatedb package (db.go — not retrieved in full, but its shape
// is visible through flush.go and db_test.go's call sites) to drive
// internal/memlist as the flush-coordination core.
package vidardb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/thanos-io/objstore"

	"github.com/vidardb/vidardb/internal/common"
	"github.com/vidardb/vidardb/internal/compaction"
	"github.com/vidardb/vidardb/internal/config"
	"github.com/vidardb/vidardb/internal/logger"
	"github.com/vidardb/vidardb/internal/manifest"
	"github.com/vidardb/vidardb/internal/memlist"
	"github.com/vidardb/vidardb/internal/memtable"
	"github.com/vidardb/vidardb/internal/store"
	"github.com/vidardb/vidardb/internal/types"
	"github.com/vidardb/vidardb/internal/wal"
)

// DB is the opened engine handle. All public methods are safe for
// concurrent use.
type DB struct {
	mu common.TrackedMutex

	opts config.DBOptions

	wal         *wal.WAL
	walImmQueue *wal.Queue
	nextWALID   atomic.Uint64

	activeMu       sync.RWMutex
	active         *memtable.Memtable
	nextMemtableID atomic.Uint64
	memList        *memlist.MemtableList

	tableStore *store.TableStore
	versions   *store.VersionSet

	compactedMu sync.RWMutex
	compacted   []compaction.SSTHandle

	flusher *flushScheduler

	closed atomic.Bool
}

// Open starts the engine rooted at path inside bucket, replaying any
// existing manifest edits before accepting writes.
func Open(ctx context.Context, path string, bucket objstore.Bucket, optFns ...func(*config.DBOptions)) (*DB, error) {
	opts := config.DefaultDBOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	db := &DB{
		opts:        opts,
		wal:         wal.New(0),
		walImmQueue: wal.NewQueue(),
		tableStore:  store.NewTableStore(bucket, path, opts.CompressionCodec),
		versions:    store.NewVersionSet(bucket, path+"/manifest"),
	}
	db.nextWALID.Store(1)
	db.nextMemtableID.Store(1)
	db.active = memtable.New(db.nextMemtableID.Add(1) - 1)
	db.memList = memlist.NewMemtableList(
		opts.Memtable.MinWriteBufferNumberToMerge,
		opts.Memtable.MaxWriteBufferNumberToMaintain,
	)

	edits, err := db.versions.LoadLatest(ctx)
	if err != nil {
		logger.Warn("unable to load manifest, starting empty", "error", err)
	} else {
		db.replayEdits(edits)
	}

	db.flusher = newFlushScheduler(db)
	db.flusher.start()
	return db, nil
}

func (db *DB) replayEdits(edits []manifest.Edit) {
	db.compactedMu.Lock()
	defer db.compactedMu.Unlock()
	for _, e := range edits {
		if e.Kind == manifest.KindAddMemtable || e.Kind == manifest.KindCompaction {
			db.compacted = append(db.compacted, compaction.SSTHandle{Key: e.SSTKey, MinKey: e.MinKey, MaxKey: e.MaxKey})
		}
	}
}

// Put writes a live value, visible to subsequent Gets once it reaches
// the active WAL/memtable. Equivalent to PutWithOptions with
// AwaitDurable: false.
func (db *DB) Put(key, value []byte) {
	db.PutWithOptions(key, value, config.WriteOptions{AwaitDurable: false})
}

// PutWithOptions writes a live value. When opts.AwaitDurable is true it
// blocks on a synchronous FlushWAL, which freezes the write's WAL segment
// and merges it into the active memtable; nothing is uploaded to object
// storage by this call, and a FlushWAL error is not reported.
func (db *DB) PutWithOptions(key, value []byte, opts config.WriteOptions) {
	db.wal.Put(key, value)
	if opts.AwaitDurable {
		_ = db.FlushWAL(context.Background())
	}
}

// Delete records a tombstone. Equivalent to DeleteWithOptions with
// AwaitDurable: false.
func (db *DB) Delete(key []byte) {
	db.DeleteWithOptions(key, config.WriteOptions{AwaitDurable: false})
}

// DeleteWithOptions records a tombstone, awaiting durability per
// opts.AwaitDurable the same way PutWithOptions does.
func (db *DB) DeleteWithOptions(key []byte, opts config.WriteOptions) {
	db.wal.Delete(key)
	if opts.AwaitDurable {
		_ = db.FlushWAL(context.Background())
	}
}

// Get performs a point lookup across the active WAL, the unflushed and
// history memtable versions, and finally the durable compacted SSTs,
// newest data first. Equivalent to GetWithOptions with
// ReadLevel: Uncommitted.
func (db *DB) Get(ctx context.Context, key []byte) ([]byte, error) {
	return db.GetWithOptions(ctx, key, config.ReadOptions{ReadLevel: config.Uncommitted})
}

// GetWithOptions performs a point lookup. With ReadLevel: Uncommitted it
// also scans the active WAL and the queue of frozen-but-not-yet-merged
// WAL segments, the same as Get; with ReadLevel: Committed it skips both
// and only ever sees data that has already been merged into a memtable,
// mirroring the teacher's GetWithOptions/ReadLevel contract.
func (db *DB) GetWithOptions(ctx context.Context, key []byte, opts config.ReadOptions) ([]byte, error) {
	if opts.ReadLevel == config.Uncommitted {
		if v, ok := db.wal.Get(key).Get(); ok {
			if v.IsTombstone {
				return nil, common.ErrKeyNotFound
			}
			return v.Value, nil
		}

		if v, ok := db.walImmQueue.Get(key).Get(); ok {
			if v.IsTombstone {
				return nil, common.ErrKeyNotFound
			}
			return v.Value, nil
		}
	}

	// activeMu is held across both the active-memtable check and the
	// memList snapshot: maybeFreezeActiveMemtable and Flush hold the same
	// lock across their active-memtable swap and the matching memList.Add,
	// so no Get can land in the gap between "active memtable replaced" and
	// "memList now carries the frozen memtable".
	seq := ^uint64(0)
	db.activeMu.RLock()
	val, status := db.active.Get(key, seq)
	if status == memlist.StatusOK {
		db.activeMu.RUnlock()
		return val, nil
	}
	if status == memlist.StatusNotFound {
		db.activeMu.RUnlock()
		return nil, common.ErrKeyNotFound
	}
	version := db.memList.Current()
	db.activeMu.RUnlock()
	var toDelete []*memlist.Handle
	defer func() { version.Unref(&toDelete) }()

	val, status, found := version.Get(key, seq)
	if found {
		if status == memlist.StatusOK {
			return val, nil
		}
		return nil, common.ErrKeyNotFound
	}
	val, status, found = version.GetFromHistory(key, seq)
	if found {
		if status == memlist.StatusOK {
			return val, nil
		}
		return nil, common.ErrKeyNotFound
	}

	return db.getFromCompacted(ctx, key)
}

// getFromCompacted scans the durably compacted SSTs newest-first. This
// engine's manual-compaction scope (spec Non-goals) does not maintain a
// sorted-run index, so the scan is linear rather than a binary search
// over SSTHandle.MinKey/MaxKey.
func (db *DB) getFromCompacted(ctx context.Context, key []byte) ([]byte, error) {
	db.compactedMu.RLock()
	handles := append([]compaction.SSTHandle(nil), db.compacted...)
	db.compactedMu.RUnlock()

	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		rows, err := db.tableStore.ReadSST(ctx, h.Key)
		if err != nil {
			logger.Warn("unable to read compacted sst", "key", h.Key, "error", err)
			continue
		}
		for _, r := range rows {
			if string(r.Key) == string(key) {
				if r.Value.IsTombstone {
					return nil, common.ErrKeyNotFound
				}
				return r.Value.Value, nil
			}
		}
	}
	return nil, common.ErrKeyNotFound
}

// FlushWAL freezes the active WAL and drains every immutable segment
// into the active memtable, mirroring the teacher's FlushWAL/flushImmWALs
// pair.
func (db *DB) FlushWAL(ctx context.Context) error {
	imm := db.wal.Freeze(uint64(db.nextWALID.Add(1)))
	db.walImmQueue.PushBack(imm)
	return db.flushImmWALs(ctx)
}

func (db *DB) flushImmWALs(ctx context.Context) error {
	for {
		imm := db.walImmQueue.Front()
		if imm == nil {
			return nil
		}

		it := imm.Table().Iter(^uint64(0))
		db.activeMu.RLock()
		active := db.active
		db.activeMu.RUnlock()
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			if e.Value.IsTombstone {
				active.Delete(e.Key, e.Seq)
			} else {
				active.Put(e.Key, e.Value.Value, e.Seq)
			}
		}
		db.walImmQueue.PopFront()

		db.maybeFreezeActiveMemtable(ctx)
	}
}

// maybeFreezeActiveMemtable moves the active memtable into the
// memlist.MemtableList's unflushed queue once it has grown past
// L0SSTSizeBytes, the same threshold the teacher checks in
// maybeFreezeMemtable.
func (db *DB) maybeFreezeActiveMemtable(ctx context.Context) {
	db.activeMu.RLock()
	size := db.active.SizeBytes()
	db.activeMu.RUnlock()
	if uint64(size) < db.opts.L0SSTSizeBytes {
		return
	}

	// activeMu is held across the swap AND memList.Add so a concurrent Get
	// (which holds activeMu.RLock across its own active-memtable check and
	// memList snapshot) can never observe db.active already replaced while
	// memList still lacks the frozen memtable.
	db.activeMu.Lock()
	frozen := db.active
	if uint64(frozen.SizeBytes()) < db.opts.L0SSTSizeBytes {
		db.activeMu.Unlock()
		return
	}
	db.active = memtable.New(db.nextMemtableID.Add(1) - 1)
	frozen.Freeze()

	db.mu.Lock()
	var toDelete []*memlist.Handle
	db.memList.Add(&db.mu, memlist.NewHandle(frozen), &toDelete)
	db.mu.Unlock()
	db.activeMu.Unlock()
	// A plain Add never evicts a handle, so toDelete is always empty here;
	// it is still threaded through to keep the call site symmetric with
	// InstallMemtableFlushResults.
}

// Flush requests an out-of-band flush of the active memtable, even if it
// has not yet reached L0SSTSizeBytes, mirroring the caller-driven
// FlushRequested path memlist exposes for S6-style explicit flush calls.
func (db *DB) Flush(ctx context.Context) error {
	if err := db.FlushWAL(ctx); err != nil {
		return err
	}

	// activeMu stays held across the swap and memList.Add, matching
	// maybeFreezeActiveMemtable, so Get can never observe the active
	// memtable replaced before memList carries its frozen predecessor.
	db.activeMu.Lock()
	frozen := db.active
	empty := frozen.IsEmpty()
	if !empty {
		db.active = memtable.New(db.nextMemtableID.Add(1) - 1)
		frozen.Freeze()
	}

	db.mu.Lock()
	if !empty {
		var toDelete []*memlist.Handle
		db.memList.Add(&db.mu, memlist.NewHandle(frozen), &toDelete)
	}
	db.memList.FlushRequested(&db.mu)
	db.mu.Unlock()
	db.activeMu.Unlock()

	db.flusher.notifyImmFlush()
	return db.FlushMemtableToL0(ctx)
}

// FlushMemtableToL0 drives one round of the pick→flush→install protocol
// against whatever is currently unflushed, generalized from the
// teacher's MemtableFlusher.flushImmMemtablesToL0.
func (db *DB) FlushMemtableToL0(ctx context.Context) error {
	db.mu.Lock()
	picked := db.memList.PickMemtablesToFlush(&db.mu)
	db.mu.Unlock()
	if len(picked) == 0 {
		return nil
	}

	for _, h := range picked {
		mt, ok := h.Memtable().(*memtable.Memtable)
		if !ok {
			return fmt.Errorf("vidardb: unexpected memtable type %T", h.Memtable())
		}

		rows := collectRows(mt)
		sstKey := store.NewSSTKey()
		minKey, maxKey, size, err := db.tableStore.WriteSST(ctx, sstKey, rows)
		if err != nil {
			db.mu.Lock()
			db.memList.RollbackMemtableFlush(&db.mu, picked)
			db.mu.Unlock()
			return fmt.Errorf("vidardb: flush memtable %d: %w", h.ID(), err)
		}
		mt.SetEdits(manifest.Edit{
			Kind:       manifest.KindAddMemtable,
			MemtableID: h.ID(),
			SSTKey:     sstKey,
			SizeBytes:  size,
			MinKey:     minKey,
			MaxKey:     maxKey,
		})
	}

	db.mu.Lock()
	var toDelete []*memlist.Handle
	err := db.memList.InstallMemtableFlushResults(ctx, &db.mu, picked, db.versions, &toDelete)
	db.mu.Unlock()
	if err != nil {
		return fmt.Errorf("vidardb: install flush results: %w", err)
	}

	db.compactedMu.Lock()
	for _, h := range picked {
		if e, ok := h.Edits().(manifest.Edit); ok {
			db.compacted = append(db.compacted, compaction.SSTHandle{Key: e.SSTKey, MinKey: e.MinKey, MaxKey: e.MaxKey})
		}
	}
	db.compactedMu.Unlock()

	return nil
}

func collectRows(mt *memtable.Memtable) []types.RowEntry {
	it := mt.Iter(^uint64(0))
	var rows []types.RowEntry
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		rows = append(rows, e)
	}
	return rows
}

// Close stops the background flush goroutines and flushes any remaining
// in-memory state to the manifest.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	db.flusher.stop()

	// Flush drains the WAL, freezes the active memtable whatever its size,
	// and installs every unflushed memtable into the manifest.
	ctx := context.Background()
	if err := db.Flush(ctx); err != nil {
		logger.Error("error flushing on close", "error", err)
	}
	return logger.Sync()
}
