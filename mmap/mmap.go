// Package mmap wraps the platform memory-mapping primitives used for
// database files: mapping, unmapping, access-pattern advice, page
// locking and data-only syncing.
package mmap

import (
	"errors"
	"os"
)

// ErrUnsupported is returned on platforms without the corresponding
// primitive.
var ErrUnsupported = errors.New("mmap: not supported on this platform")

type Options uint

const (
	// Writable opens the mapping for writing (otherwise it is read-only).
	Writable Options = 1 << 0

	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// RandomAccess is a hint that read-ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 2

	// Prefault is a hint requesting the entire file to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux.
	Prefault Options = 1 << 3
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Advice is a page access-pattern hint for an existing mapping.
type Advice int

const (
	AdviceNormal Advice = iota
	AdviceRandom
	AdviceSequential
	AdviceWillNeed
	AdviceDontNeed
)

// Mmap memory maps a DB's data file.
func Mmap(f *os.File, offset, size int, opt Options) ([]byte, error) {
	if offset != 0 {
		panic("non-zero offset not yet supported")
	}
	return mmap(f, size, opt)
}

// Munmap unmaps the given slice from memory. The slice must have been
// returned by Mmap.
func Munmap(b []byte) error {
	return munmap(b)
}

// Madvise applies an access-pattern hint to a mapped region.
func Madvise(b []byte, advice Advice) error {
	return madvise(b, advice)
}

// Mlock pins a mapped region into physical memory.
func Mlock(b []byte) error {
	return mlock(b)
}

// Munlock releases a pin taken by Mlock.
func Munlock(b []byte) error {
	return munlock(b)
}

// Fdatasync triggers the fastest fsync-like operation that ensures
// durability of the data written to the given file and/or memory
// mapping. It can beat f.Sync() by skipping metadata (timestamps) that
// durability does not need.
//
// If mapping is non-nil, it is an mmap'ed slice corresponding to the
// file, for operating systems that sync mapped data through a separate
// interface.
//
// Errors from this function are not recoverable: many systems mark
// modified pages clean even when fsync fails, so the only sensible
// handling is to treat the database as corrupted.
func Fdatasync(f *os.File, mapping []byte) error {
	return fdatasync(f, mapping)
}
