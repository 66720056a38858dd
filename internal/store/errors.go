package store

import "errors"

var (
	// ErrManifestIO wraps any failure from the durable manifest log —
	// internal/memlist's InstallIO path wraps this in turn via %w.
	ErrManifestIO = errors.New("store: manifest io error")
	// ErrNotFound is returned when an SST key has no corresponding object.
	ErrNotFound = errors.New("store: sst not found")
)
