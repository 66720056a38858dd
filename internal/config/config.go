// Package config holds the option structs threaded through
// Open/Put/PutWithOptions/Get/GetWithOptions, matching the field names and
// defaults exercised by the teacher's db_test.go (FlushInterval,
// ManifestPollInterval, L0SSTSizeBytes, CompressionCodec, AwaitDurable,
// ReadLevel).
package config

import (
	"time"

	"github.com/vidardb/vidardb/internal/compress"
)

// ReadLevel controls whether a read may observe writes that have not yet
// been made durable via the WAL flush pipeline.
type ReadLevel int

const (
	Committed ReadLevel = iota
	Uncommitted
)

// ReadOptions configures a single GetWithOptions call: ReadLevel:
// Uncommitted also scans the active WAL and its frozen-but-unmerged
// segments, ReadLevel: Committed sees only data already merged into a
// memtable.
type ReadOptions struct {
	ReadLevel ReadLevel
}

// WriteOptions configures a single PutWithOptions/DeleteWithOptions call.
type WriteOptions struct {
	// AwaitDurable, when true, blocks until the write's WAL segment has
	// been frozen and merged into the active memtable. It does not wait
	// for any upload to object storage.
	AwaitDurable bool
}

// MemtableOptions configures the immutable memtable list (the core).
type MemtableOptions struct {
	// MinWriteBufferNumberToMerge is M in spec §3: the number of
	// not-yet-picked memtables that triggers automatic flush-pending.
	MinWriteBufferNumberToMerge uint32
	// MaxWriteBufferNumberToMaintain is H in spec §3: the history
	// retention window. Zero disables history.
	MaxWriteBufferNumberToMaintain uint32
}

// DBOptions configures an opened DB.
type DBOptions struct {
	FlushInterval        time.Duration
	ManifestPollInterval time.Duration
	L0SSTSizeBytes       uint64
	CompressionCodec     compress.Codec
	Memtable             MemtableOptions
}

func DefaultDBOptions() DBOptions {
	return DBOptions{
		FlushInterval:        500 * time.Millisecond,
		ManifestPollInterval: 500 * time.Millisecond,
		L0SSTSizeBytes:       64 << 20,
		CompressionCodec:     compress.CodecNone,
		Memtable: MemtableOptions{
			MinWriteBufferNumberToMerge:    1,
			MaxWriteBufferNumberToMaintain: 2,
		},
	}
}
