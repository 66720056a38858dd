package vidardb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"

	"github.com/vidardb/vidardb/internal/common"
	"github.com/vidardb/vidardb/internal/config"
)

func testOptions() func(*config.DBOptions) {
	return func(o *config.DBOptions) {
		o.L0SSTSizeBytes = 1024
		o.Memtable.MinWriteBufferNumberToMerge = 1
		o.Memtable.MaxWriteBufferNumberToMaintain = 2
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	bucket := objstore.NewInMemBucket()
	db, err := Open(context.Background(), "/test", bucket, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.Put([]byte("key1"), []byte("value1"))
	val, err := db.Get(ctx, []byte("key1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), val)

	db.Put([]byte("key2"), []byte("value2"))
	require.NoError(t, db.FlushWAL(ctx))
	val, err = db.Get(ctx, []byte("key2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value2"), val)

	db.Delete([]byte("key2"))
	_, err = db.Get(ctx, []byte("key2"))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestGetNonExistingKey(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.Put([]byte("key1"), []byte("value1"))
	require.NoError(t, db.FlushWAL(ctx))
	require.NoError(t, db.FlushMemtableToL0(ctx))

	_, err := db.Get(ctx, []byte("key2"))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestGetReadsThroughActiveWALBeforeFlush(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.Put([]byte("k1"), []byte("v1"))
	val, err := db.Get(ctx, []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)
}

func TestGetAfterWALFlushReadsFromActiveMemtable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.Put([]byte("k1"), []byte("v1"))
	require.NoError(t, db.FlushWAL(ctx))
	// The active memtable is below L0SSTSizeBytes, so it is never frozen
	// and FlushMemtableToL0 has nothing to pick.
	require.NoError(t, db.FlushMemtableToL0(ctx))

	val, err := db.Get(ctx, []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)
}

func TestFlushFreezesAndInstallsEvenBelowSizeThreshold(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.Put([]byte("k1"), []byte("v1"))
	require.NoError(t, db.Flush(ctx))

	assert.Equal(t, 0, db.memList.NumNotFlushed())
	assert.Equal(t, 1, db.memList.NumFlushed())

	val, err := db.Get(ctx, []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)
}

func TestDeleteTombstoneShadowsOlderCompactedValue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	db.Put([]byte("k1"), []byte("v1"))
	require.NoError(t, db.Flush(ctx))

	db.Delete([]byte("k1"))
	_, err := db.Get(ctx, []byte("k1"))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestCloseIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}
