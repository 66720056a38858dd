// Package common holds small cross-cutting helpers shared by every layer
// of the engine: sentinel errors, debug assertions and simple range math.
package common

import (
	"errors"

	"github.com/vidardb/vidardb/internal/logger"
)

var (
	// ErrKeyNotFound is returned when a lookup finds no live value for a key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrObjectStore wraps any failure talking to the underlying object bucket.
	ErrObjectStore = errors.New("object store error")
	// ErrInvalidDBState indicates on-disk state could not be parsed.
	ErrInvalidDBState = errors.New("invalid db state")
)

// AssertTrue logs an error and returns false when cond is false instead of
// panicking, matching the teacher's soft-assertion style used throughout
// its tests (assert2.True(err == nil, "")) for release-safe invariants.
func AssertTrue(cond bool, msg string) bool {
	if !cond {
		logger.Error("assertion failed", "msg", msg)
	}
	return cond
}

// Range is a half-open byte offset range [Start, End) used when reading
// slices of on-disk blocks.
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}
