package treedb

import "slices"

// Iterator is a positioned reference within a tree's primary
// sub-database or one of its index sub-databases, backed by a
// transaction snapshot. Key and Value return zero-copy engine views
// that stay valid only while the transaction is live; the iterator
// never re-exposes a caller-supplied search key as its current key.
//
// An iterator created without a caller-supplied transaction owns a
// read-only one, released by Close. An iterator over a borrowed
// transaction must not outlive it. Iterators are single-thread use
// only.
type Iterator struct {
	tree    *Tree
	txn     *Txn
	ownsTxn bool
	desc    *indexDescriptor // nil for primary iterators
	cur     Cursor
	key     []byte
	value   []byte
	valid   bool
	closed  bool
}

// Iterator creates a primary iterator with its own read transaction.
func (t *Tree) Iterator() (*Iterator, error) {
	txn, err := t.db.Begin(false)
	if err != nil {
		return nil, err
	}
	it, err := t.newIterator(txn, true, nil)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	return it, nil
}

// IteratorWithTxn creates a primary iterator over the caller's
// transaction.
func (t *Tree) IteratorWithTxn(txn *Txn) (*Iterator, error) {
	if err := txn.usable(); err != nil {
		return nil, err
	}
	return t.newIterator(txn, false, nil)
}

func (t *Tree) newIterator(txn *Txn, owns bool, desc *indexDescriptor) (*Iterator, error) {
	var b Bucket
	var err error
	if desc == nil {
		b, err = txn.treeBucket(t)
	} else {
		b, err = txn.indexBucket(t, desc)
	}
	if err != nil {
		return nil, err
	}
	return &Iterator{
		tree:    t,
		txn:     txn,
		ownsTxn: owns,
		desc:    desc,
		cur:     b.Cursor(),
	}, nil
}

// Txn returns the iterator's transaction.
func (it *Iterator) Txn() *Txn { return it.txn }

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool { return it.valid && !it.closed }

// Key returns the current key: the primary key for primary iterators,
// the index key for index iterators. Zero-copy view.
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.key
}

// Value returns the current value: the stored value for primary
// iterators, the primary key for index iterators. Zero-copy view.
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.value
}

// MainKey returns the primary key an index iterator points at. It is
// an alias for Value, since an index entry's value is the main key.
func (it *Iterator) MainKey() []byte { return it.Value() }

// KeyCopy returns an owned copy of the current key, safe to keep after
// the iterator closes.
func (it *Iterator) KeyCopy() []byte {
	if !it.Valid() {
		return nil
	}
	return slices.Clone(it.key)
}

// ValueCopy returns an owned copy of the current value.
func (it *Iterator) ValueCopy() []byte {
	if !it.Valid() {
		return nil
	}
	return slices.Clone(it.value)
}

func (it *Iterator) set(k, v []byte) bool {
	if k == nil {
		it.key, it.value, it.valid = nil, nil, false
		return false
	}
	if it.desc != nil && !it.desc.unique {
		ik, pk, err := splitIndexEntry(k)
		if err != nil {
			it.key, it.value, it.valid = nil, nil, false
			return false
		}
		it.key, it.value, it.valid = ik, pk, true
		return true
	}
	it.key, it.value, it.valid = k, v, true
	return true
}

func (it *Iterator) First() bool {
	if it.closed {
		return false
	}
	return it.set(it.cur.First())
}

func (it *Iterator) Last() bool {
	if it.closed {
		return false
	}
	return it.set(it.cur.Last())
}

func (it *Iterator) Next() bool {
	if !it.Valid() {
		return false
	}
	return it.set(it.cur.Next())
}

func (it *Iterator) Prev() bool {
	if !it.Valid() {
		return false
	}
	return it.set(it.cur.Prev())
}

func (it *Iterator) compareKeys(a, b []byte) int {
	if it.desc != nil {
		return bytesCompare(it.desc.cmp, a, b)
	}
	return bytesCompare(it.tree.cmp, a, b)
}

// Seek positions at the exact key; the iterator becomes invalid when
// the key is absent.
func (it *Iterator) Seek(key []byte) bool {
	if !it.SeekRange(key) {
		return false
	}
	if it.compareKeys(it.key, key) != 0 {
		it.key, it.value, it.valid = nil, nil, false
		return false
	}
	return true
}

// SeekRange positions at the given key or the next greater one
// (SET_RANGE semantics).
func (it *Iterator) SeekRange(key []byte) bool {
	if it.closed {
		return false
	}
	if !it.set(it.cur.Seek(key)) {
		return false
	}
	// Composite entries of a shorter index key can sort past the seek
	// target; skip until the decoded index key catches up.
	for it.valid && it.compareKeys(it.key, key) < 0 {
		if !it.set(it.cur.Next()) {
			return false
		}
	}
	return it.valid
}

// Delete removes the current entry with full index maintenance and
// repositions the iterator at the following key (invalid when none).
// Requires a write transaction and a primary iterator.
func (it *Iterator) Delete() error {
	if !it.Valid() {
		return errf(InvalidArgument, nil, "iterator is not positioned on an entry")
	}
	if it.desc != nil {
		return treeErrf(it.tree.name, it.desc.name, InvalidArgument, nil, "cannot delete through an index iterator")
	}
	if err := it.txn.requireWritable(); err != nil {
		return err
	}

	// Snapshot before mutating: the engine may reuse the views.
	key := slices.Clone(it.key)
	valueBuf := append(valueBytesPool.Get().([]byte), it.value...)
	defer releaseValueBytes(valueBuf)

	if err := it.txn.deleteIndexEntries(it.tree, key, valueBuf); err != nil {
		return err
	}
	if err := it.cur.Delete(); err != nil {
		return translateEngineErr(err, "deleting at cursor")
	}
	it.txn.bumpCount(it.tree, -1)

	it.set(it.cur.Next())
	return nil
}

// Close releases the iterator, aborting its transaction when owned.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.valid = false
	if it.ownsTxn {
		it.txn.Abort()
	}
}

// IndexSeek returns an iterator positioned at the exact index key of
// the named index, with its own read transaction. The iterator yields
// (indexKey, primaryKey) pairs.
func (t *Tree) IndexSeek(name string, key []byte) (*Iterator, error) {
	return t.indexSeek(nil, name, key, false)
}

// IndexSeekRange is like IndexSeek but positions at the index key or
// the next greater one.
func (t *Tree) IndexSeekRange(name string, key []byte) (*Iterator, error) {
	return t.indexSeek(nil, name, key, true)
}

// IndexSeekWithTxn is IndexSeek over the caller's transaction.
func (t *Tree) IndexSeekWithTxn(txn *Txn, name string, key []byte) (*Iterator, error) {
	if err := txn.usable(); err != nil {
		return nil, err
	}
	return t.indexSeek(txn, name, key, false)
}

// IndexSeekRangeWithTxn is IndexSeekRange over the caller's transaction.
func (t *Tree) IndexSeekRangeWithTxn(txn *Txn, name string, key []byte) (*Iterator, error) {
	if err := txn.usable(); err != nil {
		return nil, err
	}
	return t.indexSeek(txn, name, key, true)
}

func (t *Tree) indexSeek(txn *Txn, name string, key []byte, ranged bool) (*Iterator, error) {
	desc := t.indexNamed(name)
	if desc == nil {
		return nil, treeErrf(t.name, name, NotFound, nil, "no such index")
	}

	owns := false
	if txn == nil {
		var err error
		txn, err = t.db.Begin(false)
		if err != nil {
			return nil, err
		}
		owns = true
	}

	it, err := t.newIterator(txn, owns, desc)
	if err != nil {
		if owns {
			txn.Abort()
		}
		return nil, err
	}
	if ranged {
		it.SeekRange(key)
	} else {
		it.Seek(key)
	}
	return it, nil
}
