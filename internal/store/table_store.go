// Package store is the collaborator internal/memlist never talks to
// directly: it reads and writes flushed SSTs through an objstore.Bucket
// and implements memlist.ManifestWriter over a durable manifest log,
// adapted from the teacher's slatedb/table_store.go (TableStore, the
// otter filter cache, the bucket/path conventions) generalized to this
// engine's simpler single-blob SST layout.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/maypok86/otter"
	"github.com/oklog/ulid/v2"
	"github.com/thanos-io/objstore"

	"github.com/vidardb/vidardb/internal/compress"
	"github.com/vidardb/vidardb/internal/logger"
	"github.com/vidardb/vidardb/internal/types"
)

// TableStore writes flushed memtable contents as a single compressed
// blob per SST, cached behind an in-memory otter.Cache the same way the
// teacher caches bloom filters — here it caches whole decoded row sets,
// since this engine has no block/filter format of its own to cache
// piecewise.
type TableStore struct {
	mu            sync.RWMutex
	bucket        objstore.Bucket
	rootPath      string
	compactedPath string
	codec         compress.Codec
	cache         otter.Cache[string, []types.RowEntry]
}

func NewTableStore(bucket objstore.Bucket, rootPath string, codec compress.Codec) *TableStore {
	cache, err := otter.MustBuilder[string, []types.RowEntry](1000).Build()
	if err != nil {
		logger.Error("unable to build table store cache", "error", err)
	}
	return &TableStore{
		bucket:        bucket,
		rootPath:      rootPath,
		compactedPath: "compacted",
		codec:         codec,
		cache:         cache,
	}
}

// NewSSTKey mints a fresh SST object key. ulid gives lexicographically
// sortable, time-ordered ids, matching the teacher's sstable.NewIDCompacted.
func NewSSTKey() string { return ulid.Make().String() }

func (ts *TableStore) sstPath(key string) string {
	return path.Join(ts.rootPath, ts.compactedPath, key+".sst")
}

// WriteSST encodes rows as a length-prefixed record stream, compresses it
// with the configured codec, and uploads it to the bucket.
func (ts *TableStore) WriteSST(ctx context.Context, key string, rows []types.RowEntry) (minKey, maxKey []byte, sizeBytes uint64, err error) {
	raw := encodeRows(rows)
	compressed, err := compress.Compress(ts.codec, raw)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("store: compress sst %s: %w", key, err)
	}

	if uploadErr := ts.bucket.Upload(ctx, ts.sstPath(key), bytes.NewReader(compressed)); uploadErr != nil {
		logger.Error("unable to upload sst", "key", key, "error", uploadErr)
		return nil, nil, 0, fmt.Errorf("store: upload sst %s: %w", key, uploadErr)
	}

	ts.cacheRows(key, rows)

	if len(rows) > 0 {
		minKey = rows[0].Key
		maxKey = rows[len(rows)-1].Key
	}
	return minKey, maxKey, uint64(len(compressed)), nil
}

// ReadSST downloads and decodes an SST, serving from the row cache when
// possible.
func (ts *TableStore) ReadSST(ctx context.Context, key string) ([]types.RowEntry, error) {
	ts.mu.RLock()
	rows, ok := ts.cache.Get(key)
	ts.mu.RUnlock()
	if ok {
		return rows, nil
	}

	r, err := ts.bucket.Get(ctx, ts.sstPath(key))
	if err != nil {
		logger.Warn("unable to get sst", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer r.Close()

	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("store: read sst %s: %w", key, err)
	}

	raw, err := compress.Decompress(ts.codec, compressed)
	if err != nil {
		return nil, fmt.Errorf("store: decompress sst %s: %w", key, err)
	}

	rows, err = decodeRows(raw)
	if err != nil {
		return nil, fmt.Errorf("store: decode sst %s: %w", key, err)
	}
	ts.cacheRows(key, rows)
	return rows, nil
}

func (ts *TableStore) cacheRows(key string, rows []types.RowEntry) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.cache.Set(key, rows)
}

// encodeRows is a minimal length-prefixed record format: this engine's
// manifest records the SST's key range and size, not a block index, so
// the on-disk layout only needs to round-trip through WriteSST/ReadSST.
func encodeRows(rows []types.RowEntry) []byte {
	var buf bytes.Buffer
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(rows)))
	buf.Write(hdr[:4])
	for _, r := range rows {
		writeChunk(&buf, r.Key)
		tomb := byte(0)
		if r.Value.Type() == types.TypeDeletion {
			tomb = 1
		}
		buf.WriteByte(tomb)
		writeChunk(&buf, r.Value.Value)
		binary.BigEndian.PutUint64(hdr[:8], r.Seq)
		buf.Write(hdr[:8])
	}
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf.Write(l[:])
	buf.Write(b)
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	var l [4]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(l[:])
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeRows(raw []byte) ([]types.RowEntry, error) {
	r := bytes.NewReader(raw)
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(countBuf[:])
	rows := make([]types.RowEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := readChunk(r)
		if err != nil {
			return nil, err
		}
		tombByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		value, err := readChunk(r)
		if err != nil {
			return nil, err
		}
		var seqBuf [8]byte
		if _, err := io.ReadFull(r, seqBuf[:]); err != nil {
			return nil, err
		}
		rows = append(rows, types.RowEntry{
			Key:   key,
			Value: types.ValueDeletable{Value: value, IsTombstone: tombByte == 1},
			Seq:   binary.BigEndian.Uint64(seqBuf[:]),
		})
	}
	return rows, nil
}
