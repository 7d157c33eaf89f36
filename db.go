package treedb

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/treedb/treedb/mmap"
)

const (
	// DefaultMapSize is used when Options.MapSize is zero.
	DefaultMapSize = 1 << 30 // 1 GiB

	// DefaultMaxDBs is used when Options.MaxDBs is zero.
	DefaultMaxDBs = 128
)

// DB owns the engine environment, the extractor registry and the
// accounting shared by all trees. It is safe to share across threads;
// tree and transaction handles are not.
type DB struct {
	eng           Engine
	path          string
	maxDBs        int
	schemaVersion uint32
	logf          func(format string, args ...any)
	verbose       bool
	registry      *extractorRegistry

	mapSize atomic.Int64

	slotMu    sync.Mutex
	slotsUsed int

	ReaderCount        atomic.Int64
	WriterCount        atomic.Int64
	PendingWriterCount atomic.Int64
	ReadCount          atomic.Uint64
	WriteCount         atomic.Uint64
}

type Options struct {
	// MapSize is the initial size of the engine's memory map in bytes.
	// Zero means DefaultMapSize.
	MapSize int64

	// MaxDBs caps the number of concurrently open sub-databases (trees,
	// their indexes and the metadata store). Zero means DefaultMaxDBs.
	MaxDBs int

	// SchemaVersion tags persisted index metadata; see SchemaVersion and
	// MakeExtractorID. Zero means 1.
	SchemaVersion uint32

	// IsTesting trades durability for speed (no fsync, small map).
	IsTesting bool

	// Engine overrides the default Bolt engine. When set, path is
	// ignored by Open.
	Engine Engine

	Logf    func(format string, args ...any)
	Verbose bool
}

// Open opens a database environment rooted at the given directory,
// which must already exist. The engine's files live inside it.
func Open(path string, opt Options) (*DB, error) {
	if opt.MapSize == 0 {
		opt.MapSize = DefaultMapSize
	}
	if opt.MaxDBs == 0 {
		opt.MaxDBs = DefaultMaxDBs
	}
	if opt.SchemaVersion == 0 {
		opt.SchemaVersion = 1
	}
	if opt.Logf == nil {
		opt.Logf = log.Printf
	}

	eng := opt.Engine
	if eng == nil {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, errf(InvalidArgument, err, "database path %q", path)
		}
		if !fi.IsDir() {
			return nil, errf(InvalidArgument, nil, "database path %q is not a directory", path)
		}

		bopt := &bbolt.Options{}
		*bopt = *bbolt.DefaultOptions
		bopt.Timeout = 10 * time.Second
		if opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
			bopt.InitialMmapSize = 1024 * 1024 * 5
		} else {
			bopt.InitialMmapSize = int(opt.MapSize)
			bopt.FreelistType = bbolt.FreelistMapType
		}

		bdb, err := bbolt.Open(filepath.Join(path, "data.db"), 0666, bopt)
		if err != nil {
			return nil, errf(Generic, err, "opening database at %q", path)
		}
		eng = newBoltEngine(bdb)
	}

	db := &DB{
		eng:           eng,
		path:          path,
		maxDBs:        opt.MaxDBs,
		schemaVersion: opt.SchemaVersion,
		logf:          opt.Logf,
		verbose:       opt.Verbose,
		registry:      newExtractorRegistry(),
	}
	db.mapSize.Store(opt.MapSize)
	return db, nil
}

func (db *DB) Path() string { return db.path }

// Engine returns the underlying engine, for advanced use.
func (db *DB) Engine() Engine { return db.eng }

// SchemaVersion returns the schema version tag this database stamps on
// persisted index metadata.
func (db *DB) SchemaVersion() uint32 { return db.schemaVersion }

// MapSize returns the current map size.
func (db *DB) MapSize() int64 { return db.mapSize.Load() }

// Close releases the environment. All trees and transactions must be
// finished first.
func (db *DB) Close() error {
	err := db.eng.Close()
	if err != nil {
		return errf(Generic, err, "closing database")
	}
	return nil
}

// Sync forwards to the engine's sync.
func (db *DB) Sync(force bool) error {
	err := db.eng.Sync(force)
	if err != nil {
		return errf(Generic, err, "syncing database")
	}
	return nil
}

// Resize updates the engine's map size. Use in response to MapFull:
// grow the map and retry the failed transaction.
func (db *DB) Resize(newMapSize int64) error {
	if newMapSize <= 0 {
		return errf(InvalidArgument, nil, "map size must be positive, got %d", newMapSize)
	}
	if newMapSize > mmap.MaxSize {
		return errf(InvalidArgument, nil, "map size %d exceeds platform limit %d", newMapSize, int64(mmap.MaxSize))
	}
	if err := db.eng.Resize(newMapSize); err != nil {
		return translateEngineErr(err, "resizing map to %d", newMapSize)
	}
	db.mapSize.Store(newMapSize)
	return nil
}

// Stat returns engine statistics.
func (db *DB) Stat() (EngineStat, error) {
	st, err := db.eng.Stat()
	if err != nil {
		return EngineStat{}, translateEngineErr(err, "reading stats")
	}
	return st, nil
}

// RegisterExtractor records an extractor under (version<<32)|flags so
// persisted index descriptors can re-bind to it on tree open.
// Registering the same id twice is an error.
func (db *DB) RegisterExtractor(version, flags uint32, fn Extractor) error {
	return db.registry.set(MakeExtractorID(version, flags), fn)
}

// LookupExtractor returns the extractor registered under id.
func (db *DB) LookupExtractor(id ExtractorID) (Extractor, bool) {
	return db.registry.get(id)
}

func (db *DB) acquireSlots(n int) error {
	db.slotMu.Lock()
	defer db.slotMu.Unlock()
	if db.slotsUsed+n > db.maxDBs {
		return errf(Generic, nil, "too many open sub-databases (max %d)", db.maxDBs)
	}
	db.slotsUsed += n
	return nil
}

func (db *DB) releaseSlots(n int) {
	db.slotMu.Lock()
	defer db.slotMu.Unlock()
	db.slotsUsed -= n
	if db.slotsUsed < 0 {
		panic(fmt.Errorf("sub-database slot accounting went negative: %d", db.slotsUsed))
	}
}
