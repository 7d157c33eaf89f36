package treedb

import (
	"bytes"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.etcd.io/bbolt"

	"github.com/treedb/treedb/mmap"
)

type boltEngine struct {
	bdb     *bbolt.DB
	mapSize atomic.Int64

	// Advisory read-only mapping of the data file, created on the first
	// MapInfo call and refreshed when the file grows.
	hintMu   sync.Mutex
	hintFile *os.File
	hintMap  []byte
}

// newBoltEngine wraps an open Bolt database as an Engine.
func newBoltEngine(bdb *bbolt.DB) Engine {
	return &boltEngine{bdb: bdb}
}

func (e *boltEngine) BeginTx(writable bool) (EngineTx, error) {
	btx, err := e.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTx{btx: btx}, nil
}

func (e *boltEngine) Sync(force bool) error {
	// Bolt has a single kind of sync; force makes no difference.
	return e.bdb.Sync()
}

func (e *boltEngine) Resize(mapSize int64) error {
	// Bolt grows its map automatically and never reports ErrMapFull, so
	// the new size is recorded purely as a hint.
	e.mapSize.Store(mapSize)
	return nil
}

func (e *boltEngine) Stat() (EngineStat, error) {
	info := e.bdb.Info()
	st := e.bdb.Stats()
	var size int64
	err := e.bdb.View(func(btx *bbolt.Tx) error {
		size = btx.Size()
		return nil
	})
	if err != nil {
		return EngineStat{}, err
	}
	return EngineStat{
		PageSize:    info.PageSize,
		Size:        size,
		OpenTxCount: st.OpenTxN,
	}, nil
}

// MapInfo hands out a read-only mapping of the data file maintained
// separately from Bolt's own map, so hints never touch pages Bolt is
// writing.
func (e *boltEngine) MapInfo() ([]byte, error) {
	var size int64
	err := e.bdb.View(func(btx *bbolt.Tx) error {
		size = btx.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, ErrUnsupported
	}

	e.hintMu.Lock()
	defer e.hintMu.Unlock()
	if int64(len(e.hintMap)) == size {
		return e.hintMap, nil
	}
	if e.hintMap != nil {
		mmap.Munmap(e.hintMap)
		e.hintMap = nil
	}
	if e.hintFile == nil {
		f, err := os.Open(e.bdb.Path())
		if err != nil {
			return nil, err
		}
		e.hintFile = f
	}
	region, err := mmap.Mmap(e.hintFile, 0, int(size), mmap.RandomAccess)
	if err != nil {
		return nil, err
	}
	e.hintMap = region
	return region, nil
}

func (e *boltEngine) Close() error {
	e.hintMu.Lock()
	if e.hintMap != nil {
		mmap.Munmap(e.hintMap)
		e.hintMap = nil
	}
	if e.hintFile != nil {
		e.hintFile.Close()
		e.hintFile = nil
	}
	e.hintMu.Unlock()
	return e.bdb.Close()
}

type boltTx struct {
	btx *bbolt.Tx
}

func (tx *boltTx) BoltTx() *bbolt.Tx { return tx.btx }

func (tx *boltTx) Writable() bool { return tx.btx.Writable() }

func (tx *boltTx) Bucket(name string) Bucket {
	b := tx.btx.Bucket(unsafeBytesFromString(name))
	if b == nil {
		return nil
	}
	return boltBucket{b: b}
}

func (tx *boltTx) CreateBucket(name string) (Bucket, error) {
	if !tx.btx.Writable() {
		return nil, ErrReadOnlyTx
	}
	b, err := tx.btx.CreateBucketIfNotExists(unsafeBytesFromString(name))
	if err != nil {
		return nil, err
	}
	return boltBucket{b: b}, nil
}

func (tx *boltTx) DeleteBucket(name string) error {
	if !tx.btx.Writable() {
		return ErrReadOnlyTx
	}
	err := tx.btx.DeleteBucket(unsafeBytesFromString(name))
	if err == bbolt.ErrBucketNotFound {
		return ErrBucketNotFound
	}
	return err
}

func (tx *boltTx) BucketNames() []string {
	var names []string
	tx.btx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
		names = append(names, string(name))
		return nil
	})
	return names
}

func (tx *boltTx) Commit() error { return tx.btx.Commit() }

func (tx *boltTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

func (tx *boltTx) Size() int64 { return tx.btx.Size() }

type boltBucket struct {
	b *bbolt.Bucket
}

func (b boltBucket) Get(key []byte) []byte { return b.b.Get(key) }

func (b boltBucket) Put(key, value []byte) error {
	err := b.b.Put(key, value)
	if err == bbolt.ErrTxNotWritable {
		return ErrReadOnlyTx
	}
	return err
}

func (b boltBucket) Delete(key []byte) error {
	err := b.b.Delete(key)
	if err == bbolt.ErrTxNotWritable {
		return ErrReadOnlyTx
	}
	return err
}

func (b boltBucket) SetCompare(cmp Compare) error {
	// Bolt orders keys bytewise and has no comparator hook.
	return ErrUnsupported
}

func (b boltBucket) Cursor() Cursor { return boltCursor{c: b.b.Cursor()} }

func (b boltBucket) Stats() BucketStats {
	s := b.b.Stats()
	return BucketStats{
		KeyN:        s.KeyN,
		LeafInuse:   int64(s.LeafInuse),
		LeafAlloc:   int64(s.LeafAlloc),
		BranchAlloc: int64(s.BranchAlloc),
	}
}

func (b boltBucket) KeyCount() int { return b.b.Stats().KeyN }

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte) { return c.c.First() }

func (c boltCursor) Last() ([]byte, []byte) { return c.c.Last() }

func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }

func (c boltCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	if len(prefix) == 0 {
		return c.c.Last()
	}

	limit := append([]byte(nil), prefix...)
	if inc(limit) {
		k, _ := c.c.Seek(limit)
		if k == nil {
			return c.c.Last()
		}
		return c.c.Prev()
	}

	// All-0xFF prefix: fall back to linear scan.
	k, _ := c.c.Seek(prefix)
	if k == nil {
		return c.c.Last()
	}
	for k != nil && bytes.HasPrefix(k, prefix) {
		k, _ = c.c.Next()
	}
	if k == nil {
		return c.c.Last()
	}
	return c.c.Prev()
}

func (c boltCursor) Next() ([]byte, []byte) { return c.c.Next() }

func (c boltCursor) Prev() ([]byte, []byte) { return c.c.Prev() }

func (c boltCursor) Delete() error {
	err := c.c.Delete()
	if err == bbolt.ErrTxNotWritable {
		return ErrReadOnlyTx
	}
	return err
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
