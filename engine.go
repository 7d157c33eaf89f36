package treedb

import "errors"

// Engine-level sentinel errors. Adapters translate their backend's
// errors into these; translateEngineErr maps them onto the code space.
var (
	// ErrBucketNotFound is returned when a named sub-database doesn't exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrReadOnlyTx is returned by mutating calls on a read-only transaction.
	ErrReadOnlyTx = errors.New("transaction is read-only")

	// ErrMapFull signals that the engine's memory map must be grown.
	ErrMapFull = errors.New("database map is full")

	// ErrTxnFull signals that the transaction has too many dirty pages.
	ErrTxnFull = errors.New("transaction is full")

	// ErrUnsupported is returned for operations the engine cannot perform
	// (custom comparators on Bolt, memory hints on the memory engine).
	ErrUnsupported = errors.New("not supported by this engine")
)

// Compare orders two byte strings; negative if a < b, zero if equal,
// positive if a > b.
type Compare func(a, b []byte) int

// Engine represents an ordered key-value storage backend (Bolt,
// in-memory, LMDB-alike). It must provide MVCC read transactions that
// run in parallel with a single serialized writer, and durable commit.
type Engine interface {
	// BeginTx starts a new transaction.
	BeginTx(writable bool) (EngineTx, error)

	// Sync flushes the engine to stable storage. force requests a full
	// fsync even when the engine normally defers it.
	Sync(force bool) error

	// Resize updates the engine's maximum map size. Engines that grow
	// automatically may treat this as a hint.
	Resize(mapSize int64) error

	// Stat returns engine statistics.
	Stat() (EngineStat, error)

	// MapInfo returns the engine's memory-mapped region, for memory
	// hints. The slice aliases live mapped memory and must not be
	// written through. Engines without a map return ErrUnsupported.
	MapInfo() ([]byte, error)

	// Close closes the engine.
	Close() error
}

// EngineStat is a passthrough of the engine's statistics.
type EngineStat struct {
	PageSize  int
	Depth     int
	Size      int64
	OpenTxCount int
}

// EngineTx represents an engine transaction.
type EngineTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Bucket returns a named sub-database, or nil if it doesn't exist.
	Bucket(name string) Bucket

	// CreateBucket creates a sub-database if it doesn't exist.
	CreateBucket(name string) (Bucket, error)

	// DeleteBucket deletes a sub-database and all its data.
	DeleteBucket(name string) error

	// BucketNames returns the names of all sub-databases.
	BucketNames() []string

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It is safe to call after Commit.
	Rollback() error

	// Size returns the database size in bytes (0 if unknown).
	Size() int64
}

// Bucket represents a sorted key-value sub-database.
type Bucket interface {
	// Get retrieves a value by key. Returns nil if not found. The
	// returned slice is engine-owned and valid only until the next
	// mutation or the end of the transaction.
	Get(key []byte) []byte

	// Put stores a key-value pair, overwriting any existing value.
	Put(key, value []byte) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(key []byte) error

	// SetCompare installs a custom key ordering. Engine contract: must
	// be called inside a write transaction before the first write to
	// the bucket. Engines with fixed bytewise ordering return
	// ErrUnsupported.
	SetCompare(cmp Compare) error

	// Cursor returns a cursor positioned before the first key.
	Cursor() Cursor

	// Stats returns storage-specific bucket statistics. Backends that
	// don't track allocation sizes may return zeros except KeyN.
	Stats() BucketStats

	// KeyCount returns the number of keys in the bucket (best effort).
	KeyCount() int
}

// BucketStats carries per-bucket engine statistics.
type BucketStats struct {
	KeyN        int
	LeafInuse   int64
	LeafAlloc   int64
	BranchAlloc int64
}

func (s BucketStats) TotalAlloc() int64 { return s.BranchAlloc + s.LeafAlloc }

// Cursor iterates over a sorted bucket. All positioning calls return
// (nil, nil) when no entry matches; returned slices are engine-owned.
type Cursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Last moves to the last key-value pair.
	Last() (key, value []byte)

	// Seek moves to the first key >= seek (SET_RANGE semantics).
	Seek(seek []byte) (key, value []byte)

	// SeekLast moves to the last key that starts with prefix, or the
	// last key <= the highest key with that prefix. Commonly implemented
	// as Seek(inc(prefix)) then Prev.
	SeekLast(prefix []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)

	// Prev moves to the previous key-value pair.
	Prev() (key, value []byte)

	// Delete deletes the current key-value pair. A following Next
	// returns the pair after the deleted one.
	Delete() error
}
