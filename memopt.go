package treedb

import (
	"github.com/treedb/treedb/mmap"
)

// Memory hints apply to the engine's live memory-mapped region. They
// are advisory: the data remains correct whether or not the kernel
// honors them. Engines without a map (the in-memory engine) report
// Generic.

func (db *DB) mappedRegion() ([]byte, error) {
	region, err := db.eng.MapInfo()
	if err != nil {
		return nil, translateEngineErr(err, "locating memory map")
	}
	if len(region) == 0 {
		return nil, errf(Generic, nil, "engine has no memory map")
	}
	return region, nil
}

// MapInfo returns the engine's memory-mapped region. The slice aliases
// live mapped memory; callers must not write through it or hold it
// across Close.
func (db *DB) MapInfo() ([]byte, error) {
	return db.mappedRegion()
}

// Madvise applies an access-pattern hint to the whole map.
func (db *DB) Madvise(advice mmap.Advice) error {
	region, err := db.mappedRegion()
	if err != nil {
		return err
	}
	if err := mmap.Madvise(region, advice); err != nil {
		return errf(Generic, err, "madvise")
	}
	return nil
}

// Mlock pins the map into physical memory. The process needs an
// adequate RLIMIT_MEMLOCK.
func (db *DB) Mlock() error {
	region, err := db.mappedRegion()
	if err != nil {
		return err
	}
	if err := mmap.Mlock(region); err != nil {
		return errf(Generic, err, "mlock")
	}
	return nil
}

// Munlock undoes Mlock.
func (db *DB) Munlock() error {
	region, err := db.mappedRegion()
	if err != nil {
		return err
	}
	if err := mmap.Munlock(region); err != nil {
		return errf(Generic, err, "munlock")
	}
	return nil
}

// Prefetch asks the kernel to fault in length bytes of the map starting
// at offset; length <= 0 means through the end of the map.
func (db *DB) Prefetch(offset, length int64) error {
	region, err := db.mappedRegion()
	if err != nil {
		return err
	}
	if offset < 0 || offset >= int64(len(region)) {
		return errf(InvalidArgument, nil, "prefetch offset %d outside map of %d bytes", offset, len(region))
	}
	if length <= 0 || offset+length > int64(len(region)) {
		length = int64(len(region)) - offset
	}
	if err := mmap.Madvise(region[offset:offset+length], mmap.AdviceWillNeed); err != nil {
		return errf(Generic, err, "prefetch")
	}
	return nil
}
