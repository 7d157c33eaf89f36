package treedb

// Delete removes an entry if present. Index entries are removed first,
// using the stored value as the extraction source, then the primary
// entry. Deleting an absent key succeeds with deleted=false and changes
// nothing.
func (txn *Txn) Delete(tree *Tree, key []byte) (deleted bool, err error) {
	if err := txn.requireWritable(); err != nil {
		return false, err
	}
	if err := validateKey(tree, key); err != nil {
		return false, err
	}
	primary, err := txn.treeBucket(tree)
	if err != nil {
		return false, err
	}

	old := primary.Get(key)
	if old == nil {
		if txn.db.verbose {
			txn.db.logf("db: DELETE.NOOP %s/%x", tree.name, key)
		}
		return false, nil
	}
	oldBuf := append(valueBytesPool.Get().([]byte), old...)
	defer releaseValueBytes(oldBuf)

	if err := txn.deleteIndexEntries(tree, key, oldBuf); err != nil {
		return false, err
	}
	if err := primary.Delete(key); err != nil {
		return false, translateEngineErr(err, "deleting primary entry")
	}
	txn.bumpCount(tree, -1)
	if txn.db.verbose {
		txn.db.logf("db: DELETE %s/%x", tree.name, key)
	}
	return true, nil
}

// Delete is the auto-transaction variant.
func (t *Tree) Delete(key []byte) (bool, error) {
	var deleted bool
	err := t.db.Update(func(txn *Txn) error {
		var err error
		deleted, err = txn.Delete(t, key)
		return err
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
