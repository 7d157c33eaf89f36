package treedb

// ModifyFunc transforms a value during an atomic read-modify-write.
// old is nil when the key does not exist; keep=false removes (or keeps
// absent) the key, keep=true stores newValue. The old slice is only
// valid for the duration of the call.
type ModifyFunc func(old []byte, exists bool) (newValue []byte, keep bool)

// Modify reads the current value, applies f, and performs the matching
// mutation with full index maintenance:
//
//	absent  -> keep=false  no-op
//	absent  -> keep=true   insert
//	present -> keep=false  delete
//	present -> keep=true   update
func (txn *Txn) Modify(tree *Tree, key []byte, f ModifyFunc) error {
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
	newValue, keep := f(old, old != nil)

	switch {
	case old == nil && !keep:
		return nil
	case old == nil && keep:
		return txn.Insert(tree, key, newValue)
	case !keep:
		_, err := txn.Delete(tree, key)
		return err
	default:
		return txn.Update(tree, key, newValue)
	}
}

// Modify is the auto-transaction variant.
func (t *Tree) Modify(key []byte, f ModifyFunc) error {
	return t.db.Update(func(txn *Txn) error {
		return txn.Modify(t, key, f)
	})
}
