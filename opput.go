package treedb

import "bytes"

// KV is a key-value pair for batch operations.
type KV struct {
	Key   []byte
	Value []byte
}

// Insert adds a new entry; the key must not exist yet. All index
// entries are written first (their rejection, e.g. a unique violation,
// is the likely failure), and the primary write
// with its duplicate check goes last, so an index can never reference a
// primary key that does not exist. On error the caller must abort the
// transaction; the engine's rollback undoes the partial index work.
func (txn *Txn) Insert(tree *Tree, key, value []byte) error {
	if err := txn.requireWritable(); err != nil {
		return err
	}
	if err := validateKey(tree, key); err != nil {
		return err
	}
	primary, err := txn.treeBucket(tree)
	if err != nil {
		return err
	}
	if err := txn.insertLocked(tree, primary, key, value); err != nil {
		return err
	}
	if txn.db.verbose {
		txn.db.logf("db: INSERT %s/%x", tree.name, key)
	}
	return nil
}

func (txn *Txn) insertLocked(tree *Tree, primary Bucket, key, value []byte) error {
	if err := txn.putIndexEntries(tree, key, value); err != nil {
		return err
	}
	if primary.Get(key) != nil {
		return treeErrf(tree.name, "", KeyExists, nil, "key %x", key)
	}
	if err := primary.Put(key, value); err != nil {
		return translateEngineErr(err, "writing primary entry")
	}
	txn.bumpCount(tree, +1)
	return nil
}

// Update replaces the value of an existing key. Old index entries are
// removed, new ones inserted with the full unique check (a distinct
// primary key may already own the new index key), then the primary is
// overwritten. The entry count does not change.
func (txn *Txn) Update(tree *Tree, key, value []byte) error {
	if err := txn.requireWritable(); err != nil {
		return err
	}
	if err := validateKey(tree, key); err != nil {
		return err
	}
	primary, err := txn.treeBucket(tree)
	if err != nil {
		return err
	}

	old := primary.Get(key)
	if old == nil {
		return treeErrf(tree.name, "", NotFound, nil, "key %x", key)
	}
	oldBuf := append(valueBytesPool.Get().([]byte), old...)
	defer releaseValueBytes(oldBuf)

	if err := txn.deleteIndexEntries(tree, key, oldBuf); err != nil {
		return err
	}
	if err := txn.putIndexEntries(tree, key, value); err != nil {
		return err
	}
	if err := primary.Put(key, value); err != nil {
		return translateEngineErr(err, "writing primary entry")
	}
	if txn.db.verbose {
		txn.db.logf("db: UPDATE %s/%x", tree.name, key)
	}
	return nil
}

// Upsert inserts the key if absent; otherwise it replaces the value,
// passing old and new through the tree's merge function when one is
// installed. A merge function returning ok=false rejects the upsert
// with a Generic error.
func (txn *Txn) Upsert(tree *Tree, key, value []byte) error {
	if err := txn.requireWritable(); err != nil {
		return err
	}
	if err := validateKey(tree, key); err != nil {
		return err
	}
	primary, err := txn.treeBucket(tree)
	if err != nil {
		return err
	}

	old := primary.Get(key)
	if old == nil {
		if err := txn.insertLocked(tree, primary, key, value); err != nil {
			return err
		}
		if txn.db.verbose {
			txn.db.logf("db: UPSERT.INSERT %s/%x", tree.name, key)
		}
		return nil
	}

	oldBuf := append(valueBytesPool.Get().([]byte), old...)
	defer releaseValueBytes(oldBuf)

	effective := value
	if tree.merge != nil {
		merged, ok := tree.merge(oldBuf, value)
		if !ok {
			return treeErrf(tree.name, "", Generic, nil, "merge function rejected the upsert of key %x", key)
		}
		effective = merged
	}

	if err := txn.deleteIndexEntries(tree, key, oldBuf); err != nil {
		return err
	}
	if err := txn.putIndexEntries(tree, key, effective); err != nil {
		return err
	}
	if err := primary.Put(key, effective); err != nil {
		return translateEngineErr(err, "writing primary entry")
	}
	if txn.db.verbose {
		txn.db.logf("db: UPSERT %s/%x", tree.name, key)
	}
	return nil
}

// InsertMany inserts a batch within the caller's transaction. It is a
// convenience wrapper, not a separate atomicity unit: on error the
// caller must abort the transaction as with Insert.
func (txn *Txn) InsertMany(tree *Tree, kvs []KV) error {
	for _, kv := range kvs {
		if err := txn.Insert(tree, kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// UpsertMany upserts a batch within the caller's transaction.
func (txn *Txn) UpsertMany(tree *Tree, kvs []KV) error {
	for _, kv := range kvs {
		if err := txn.Upsert(tree, kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// putIndexEntries runs the insert branch of the maintenance protocol
// for every index in catalog order.
func (txn *Txn) putIndexEntries(tree *Tree, key, value []byte) error {
	for _, desc := range tree.indexes {
		idxB, err := txn.indexBucket(tree, desc)
		if err != nil {
			return err
		}
		if err := putOneIndexEntry(tree, desc, idxB, key, value); err != nil {
			return err
		}
	}
	return nil
}

func putOneIndexEntry(tree *Tree, desc *indexDescriptor, idxB Bucket, key, value []byte) error {
	ik, ok := desc.extractor(value)
	if !ok {
		if desc.sparse {
			return nil
		}
		return treeErrf(tree.name, desc.name, IndexError, nil, "extractor returned no key for non-sparse index, primary key %x", key)
	}
	if len(ik) == 0 {
		return treeErrf(tree.name, desc.name, IndexError, nil, "extractor returned an empty key for primary key %x", key)
	}

	if desc.unique {
		if existing := idxB.Get(ik); existing != nil {
			return treeErrf(tree.name, desc.name, IndexError, nil, "unique constraint violation: index key %x already maps to %x", ik, existing)
		}
		if err := idxB.Put(ik, key); err != nil {
			return translateEngineErr(err, "writing index entry for %s.%s", tree.name, desc.name)
		}
		return nil
	}

	entryBuf := keyBytesPool.Get().([]byte)
	defer releaseKeyBytes(entryBuf)
	entry := encodeIndexEntry(entryBuf, ik, key)
	// Overwriting the same (indexKey, primaryKey) pair is a no-op, which
	// keeps populate and reinsert paths idempotent under retry.
	if err := idxB.Put(entry, emptyIndexValue); err != nil {
		return translateEngineErr(err, "writing index entry for %s.%s", tree.name, desc.name)
	}
	return nil
}

// deleteIndexEntries removes the index entries derived from oldValue.
// Missing entries are tolerated: consistency is restored by the
// subsequent insert pass, and deletes stay idempotent.
func (txn *Txn) deleteIndexEntries(tree *Tree, key, oldValue []byte) error {
	for _, desc := range tree.indexes {
		idxB, err := txn.indexBucket(tree, desc)
		if err != nil {
			return err
		}

		ik, ok := desc.extractor(oldValue)
		if !ok {
			continue
		}

		if desc.unique {
			// Only remove the entry if this primary key owns it.
			if existing := idxB.Get(ik); existing != nil && bytes.Equal(existing, key) {
				if err := idxB.Delete(ik); err != nil {
					return translateEngineErr(err, "deleting index entry for %s.%s", tree.name, desc.name)
				}
			}
			continue
		}

		entryBuf := keyBytesPool.Get().([]byte)
		entry := encodeIndexEntry(entryBuf, ik, key)
		err = idxB.Delete(entry)
		releaseKeyBytes(entryBuf)
		if err != nil {
			return translateEngineErr(err, "deleting index entry for %s.%s", tree.name, desc.name)
		}
	}
	return nil
}

// Insert is the auto-transaction variant.
func (t *Tree) Insert(key, value []byte) error {
	return t.db.Update(func(txn *Txn) error {
		return txn.Insert(t, key, value)
	})
}

// Update is the auto-transaction variant.
func (t *Tree) Update(key, value []byte) error {
	return t.db.Update(func(txn *Txn) error {
		return txn.Update(t, key, value)
	})
}

// Upsert is the auto-transaction variant.
func (t *Tree) Upsert(key, value []byte) error {
	return t.db.Update(func(txn *Txn) error {
		return txn.Upsert(t, key, value)
	})
}

// InsertMany is the auto-transaction variant; the whole batch commits
// or aborts as one unit.
func (t *Tree) InsertMany(kvs []KV) error {
	return t.db.Update(func(txn *Txn) error {
		return txn.InsertMany(t, kvs)
	})
}
