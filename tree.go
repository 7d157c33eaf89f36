package treedb

import (
	"strings"
	"sync/atomic"
)

// MergeFunc resolves upsert conflicts: it receives the existing and the
// incoming value and returns the value to store. Returning ok=false
// rejects the upsert (the operation fails with Generic).
type MergeFunc func(oldValue, newValue []byte) (merged []byte, ok bool)

// IndexLoader is consulted for every persisted index descriptor found
// when a tree opens. It selects (or skips, by returning false) the
// index and supplies the extractor and persistence hooks; the
// descriptor is then added to the catalog without repopulating the
// index sub-database.
type IndexLoader func(name string, unique, sparse bool) (*IndexConfig, bool)

type TreeOptions struct {
	// Create the primary sub-database if it doesn't exist.
	Create bool

	// EntryCount is the tree's prior entry count, persisted by the
	// caller out of band; the engine does not store row counts.
	EntryCount int64

	// IndexLoader enables auto-loading of persisted index descriptors.
	IndexLoader IndexLoader
}

// Tree is a named ordered collection of opaque keys and values, with a
// catalog of secondary indexes maintained by every mutation. A Tree is
// safe to share across threads given proper per-thread transactions.
type Tree struct {
	db      *DB
	name    string
	count   atomic.Int64
	indexes []*indexDescriptor
	merge   MergeFunc
	cmp     Compare
	closed  bool
	slots   int
}

func indexBucketName(tree, index string) string {
	return "idx:" + tree + ":" + index
}

// OpenTree opens (optionally creating) a tree. When opt.IndexLoader is
// set, persisted index descriptors are loaded from the metadata store
// and re-bound to extractor code.
func (db *DB) OpenTree(name string, opt TreeOptions) (*Tree, error) {
	if name == "" {
		return nil, errf(InvalidArgument, nil, "empty tree name")
	}
	if name == metaBucketName || strings.HasPrefix(name, "idx:") {
		return nil, errf(InvalidArgument, nil, "tree name %q is reserved", name)
	}

	if err := db.acquireSlots(1); err != nil {
		return nil, err
	}
	t := &Tree{db: db, name: name, slots: 1}
	t.count.Store(opt.EntryCount)

	txn, err := db.Begin(opt.Create)
	if err != nil {
		db.releaseSlots(1)
		return nil, err
	}
	defer txn.Abort()

	if opt.Create {
		if _, err := txn.etx.CreateBucket(name); err != nil {
			db.releaseSlots(t.slots)
			return nil, translateEngineErr(err, "creating tree %q", name)
		}
	} else if txn.etx.Bucket(name) == nil {
		db.releaseSlots(t.slots)
		return nil, treeErrf(name, "", NotFound, nil, "tree does not exist")
	}

	if opt.IndexLoader != nil {
		if err := t.loadPersistedIndexes(txn, opt.IndexLoader); err != nil {
			db.releaseSlots(t.slots)
			return nil, err
		}
	}

	if opt.Create {
		if err := txn.Commit(); err != nil {
			db.releaseSlots(t.slots)
			return nil, err
		}
	}
	if db.verbose {
		db.logf("db: OPEN %s count=%d indexes=%d", name, opt.EntryCount, len(t.indexes))
	}
	return t, nil
}

// Close releases the tree handle, running user-data cleanup hooks. It
// does not touch on-disk data.
func (t *Tree) Close() {
	if t.closed {
		return
	}
	t.closed = true
	for _, desc := range t.indexes {
		if desc.cleanup != nil {
			desc.cleanup(desc.userData)
		}
	}
	t.indexes = nil
	t.db.releaseSlots(t.slots)
	t.slots = 0
}

// DeleteTree drops a tree's primary sub-database, every index
// sub-database belonging to it, and every matching metadata record.
// Open handles to the tree become invalid.
func DeleteTree(db *DB, name string) error {
	return db.Update(func(txn *Txn) error {
		err := txn.etx.DeleteBucket(name)
		if err != nil {
			return translateEngineErr(err, "deleting tree %q", name)
		}

		idxPrefix := "idx:" + name + ":"
		for _, bn := range txn.etx.BucketNames() {
			if strings.HasPrefix(bn, idxPrefix) {
				if err := txn.etx.DeleteBucket(bn); err != nil {
					return translateEngineErr(err, "deleting index sub-database %q", bn)
				}
			}
		}

		return deleteMetaRecords(txn, name)
	})
}

func (t *Tree) Name() string { return t.name }

func (t *Tree) DB() *DB { return t.db }

// Count returns the cached entry count. It is maintained incrementally
// by mutating operations and applied at commit time.
func (t *Tree) Count() int64 { return t.count.Load() }

func (t *Tree) HasIndex(name string) bool {
	return t.indexNamed(name) != nil
}

func (t *Tree) IndexCount() int { return len(t.indexes) }

// IndexExtractorID returns the durable extractor id of the named index.
func (t *Tree) IndexExtractorID(name string) (ExtractorID, bool) {
	desc := t.indexNamed(name)
	if desc == nil {
		return 0, false
	}
	return desc.extractorID, true
}

func (t *Tree) indexNamed(name string) *indexDescriptor {
	for _, desc := range t.indexes {
		if desc.name == name {
			return desc
		}
	}
	return nil
}

// SetCompare installs a custom primary-key comparator inside a
// short-lived transaction. Engine contract: must be called before the
// first write to the tree.
func (t *Tree) SetCompare(cmp Compare) error {
	t.cmp = cmp
	return t.db.Update(func(txn *Txn) error {
		b, err := txn.treeBucket(t)
		if err != nil {
			return err
		}
		if err := b.SetCompare(cmp); err != nil {
			return translateEngineErr(err, "installing comparator on tree %q", t.name)
		}
		return nil
	})
}

// SetMergeFunc wires the upsert conflict resolver.
func (t *Tree) SetMergeFunc(fn MergeFunc) {
	t.merge = fn
}
