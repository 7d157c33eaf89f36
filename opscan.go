package treedb

import (
	"bytes"
	"slices"
)

// ScanFunc visits one entry per call with zero-copy views; copy before
// keeping. Returning false stops the scan without error.
type ScanFunc func(key, value []byte) bool

// Predicate selects entries; views follow the same lifetime rules as
// ScanFunc.
type Predicate func(key, value []byte) bool

// ScanRange visits entries with start <= key <= end in ascending key
// order. A nil start begins at the first key, a nil end runs to the
// last one.
func (txn *Txn) ScanRange(tree *Tree, start, end []byte, f ScanFunc) error {
	if err := txn.usable(); err != nil {
		return err
	}
	b, err := txn.treeBucket(tree)
	if err != nil {
		return err
	}
	cur := b.Cursor()

	var k, v []byte
	if start == nil {
		k, v = cur.First()
	} else {
		k, v = cur.Seek(start)
	}
	for k != nil {
		if end != nil && bytesCompare(tree.cmp, k, end) > 0 {
			break
		}
		if !f(k, v) {
			return nil
		}
		k, v = cur.Next()
	}
	return nil
}

// ScanReverse visits entries with endLow <= key <= startHigh in
// descending key order. A nil startHigh begins at the last key, a nil
// endLow runs down to the first one.
func (txn *Txn) ScanReverse(tree *Tree, startHigh, endLow []byte, f ScanFunc) error {
	if err := txn.usable(); err != nil {
		return err
	}
	b, err := txn.treeBucket(tree)
	if err != nil {
		return err
	}
	cur := b.Cursor()

	var k, v []byte
	if startHigh == nil {
		k, v = cur.Last()
	} else {
		k, v = cur.Seek(startHigh)
		if k == nil {
			k, v = cur.Last()
		} else if bytesCompare(tree.cmp, k, startHigh) > 0 {
			k, v = cur.Prev()
		}
	}
	for k != nil {
		if endLow != nil && bytesCompare(tree.cmp, k, endLow) < 0 {
			break
		}
		if !f(k, v) {
			return nil
		}
		k, v = cur.Prev()
	}
	return nil
}

// ScanPrefix visits entries whose key starts with prefix, ascending.
// Prefix matching is bytewise, so it pairs with the default key order.
func (txn *Txn) ScanPrefix(tree *Tree, prefix []byte, f ScanFunc) error {
	if err := txn.usable(); err != nil {
		return err
	}
	b, err := txn.treeBucket(tree)
	if err != nil {
		return err
	}
	cur := b.Cursor()
	for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
		if !f(k, v) {
			return nil
		}
	}
	return nil
}

// DeleteIf removes every entry within [start, end] matching pred, with
// full index maintenance, and returns the number removed. A nil pred
// matches everything in range.
func (txn *Txn) DeleteIf(tree *Tree, start, end []byte, pred Predicate) (int64, error) {
	if err := txn.requireWritable(); err != nil {
		return 0, err
	}
	b, err := txn.treeBucket(tree)
	if err != nil {
		return 0, err
	}
	cur := b.Cursor()

	var k, v []byte
	if start == nil {
		k, v = cur.First()
	} else {
		k, v = cur.Seek(start)
	}

	keyBuf := keyBytesPool.Get().([]byte)
	valueBuf := valueBytesPool.Get().([]byte)
	defer releaseKeyBytes(keyBuf)
	defer releaseValueBytes(valueBuf)

	var deleted int64
	for k != nil {
		if end != nil && bytesCompare(tree.cmp, k, end) > 0 {
			break
		}
		if pred != nil && !pred(k, v) {
			k, v = cur.Next()
			continue
		}

		// The cursor delete invalidates the views it handed out.
		keyBuf = append(keyBuf[:0], k...)
		valueBuf = append(valueBuf[:0], v...)

		if err := txn.deleteIndexEntries(tree, keyBuf, valueBuf); err != nil {
			return deleted, err
		}
		if err := cur.Delete(); err != nil {
			return deleted, translateEngineErr(err, "deleting at cursor in tree %q", tree.name)
		}
		txn.bumpCount(tree, -1)
		deleted++
		k, v = cur.Next()
	}
	return deleted, nil
}

// CollectRange returns owned copies of up to maxCount entries within
// [start, end] matching pred (nil pred matches all); maxCount <= 0
// means unbounded.
func (txn *Txn) CollectRange(tree *Tree, start, end []byte, pred Predicate, maxCount int) ([]KV, error) {
	var out []KV
	err := txn.ScanRange(tree, start, end, func(k, v []byte) bool {
		if pred != nil && !pred(k, v) {
			return true
		}
		out = append(out, KV{Key: slices.Clone(k), Value: slices.Clone(v)})
		return maxCount <= 0 || len(out) < maxCount
	})
	return out, err
}

// ScanRange runs a range scan in its own read transaction.
func (t *Tree) ScanRange(start, end []byte, f ScanFunc) error {
	return t.db.View(func(txn *Txn) error {
		return txn.ScanRange(t, start, end, f)
	})
}

// ScanReverse runs a descending range scan in its own read transaction.
func (t *Tree) ScanReverse(startHigh, endLow []byte, f ScanFunc) error {
	return t.db.View(func(txn *Txn) error {
		return txn.ScanReverse(t, startHigh, endLow, f)
	})
}

// ScanPrefix runs a prefix scan in its own read transaction.
func (t *Tree) ScanPrefix(prefix []byte, f ScanFunc) error {
	return t.db.View(func(txn *Txn) error {
		return txn.ScanPrefix(t, prefix, f)
	})
}

// DeleteIf runs a predicated range delete in its own write transaction.
func (t *Tree) DeleteIf(start, end []byte, pred Predicate) (int64, error) {
	var deleted int64
	err := t.db.Update(func(txn *Txn) error {
		var err error
		deleted, err = txn.DeleteIf(t, start, end, pred)
		return err
	})
	return deleted, err
}

// CollectRange runs a collecting range scan in its own read
// transaction.
func (t *Tree) CollectRange(start, end []byte, pred Predicate, maxCount int) ([]KV, error) {
	var out []KV
	err := t.db.View(func(txn *Txn) error {
		var err error
		out, err = txn.CollectRange(t, start, end, pred, maxCount)
		return err
	})
	return out, err
}
