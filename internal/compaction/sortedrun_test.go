package compaction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"

	"github.com/vidardb/vidardb/internal/compress"
	"github.com/vidardb/vidardb/internal/store"
	"github.com/vidardb/vidardb/internal/types"
)

func buildRun(t *testing.T, ts *store.TableStore, chunks [][]types.RowEntry) SortedRun {
	t.Helper()
	var run SortedRun
	for _, rows := range chunks {
		key := store.NewSSTKey()
		minKey, maxKey, _, err := ts.WriteSST(context.Background(), key, rows)
		require.NoError(t, err)
		run.SSTList = append(run.SSTList, SSTHandle{Key: key, MinKey: minKey, MaxKey: maxKey})
	}
	return run
}

func TestSortedRunIteratorMergesAcrossSSTs(t *testing.T) {
	bucket := objstore.NewInMemBucket()
	ts := store.NewTableStore(bucket, "root", compress.CodecNone)

	run := buildRun(t, ts, [][]types.RowEntry{
		{{Key: []byte("a"), Value: types.ValueDeletable{Value: []byte("va")}, Seq: 1}},
		{
			{Key: []byte("b"), Value: types.ValueDeletable{IsTombstone: true}, Seq: 2},
			{Key: []byte("c"), Value: types.ValueDeletable{Value: []byte("vc")}, Seq: 3},
		},
	})

	it, err := NewSortedRunIterator(context.Background(), run, ts)
	require.NoError(t, err)

	var kvs []types.KeyValue
	for {
		kv, ok := it.Next(context.Background())
		if !ok {
			break
		}
		kvs = append(kvs, kv)
	}
	require.Len(t, kvs, 2, "tombstone for b must be skipped")
	assert.Equal(t, "a", string(kvs[0].Key))
	assert.Equal(t, "c", string(kvs[1].Key))
	assert.True(t, it.Warnings().Empty())
}

func TestSortedRunIteratorFromKeySeeksForward(t *testing.T) {
	bucket := objstore.NewInMemBucket()
	ts := store.NewTableStore(bucket, "root", compress.CodecNone)

	run := buildRun(t, ts, [][]types.RowEntry{
		{
			{Key: []byte("a"), Value: types.ValueDeletable{Value: []byte("va")}, Seq: 1},
			{Key: []byte("b"), Value: types.ValueDeletable{Value: []byte("vb")}, Seq: 2},
			{Key: []byte("c"), Value: types.ValueDeletable{Value: []byte("vc")}, Seq: 3},
		},
	})

	it, err := NewSortedRunIteratorFromKey(context.Background(), run, []byte("b"), ts)
	require.NoError(t, err)

	kv, ok := it.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "b", string(kv.Key))
}

func TestSortedRunIndexOfSSTWithKey(t *testing.T) {
	run := SortedRun{SSTList: []SSTHandle{
		{Key: "s1", MinKey: []byte("a")},
		{Key: "s2", MinKey: []byte("m")},
		{Key: "s3", MinKey: []byte("t")},
	}}

	h, ok := run.SSTWithKey([]byte("n")).Get()
	require.True(t, ok)
	assert.Equal(t, "s2", h.Key)

	_, ok = run.SSTWithKey([]byte("0")).Get()
	assert.False(t, ok, "key before the first SST's min has no containing SST")
}
