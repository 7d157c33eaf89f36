package treedb

import "slices"

func validateKey(t *Tree, key []byte) error {
	if len(key) == 0 {
		return treeErrf(t.name, "", InvalidArgument, nil, "empty key")
	}
	return nil
}

// Get retrieves a value. The returned slice is a zero-copy view into
// the engine, valid only while the transaction is live. Returns
// NotFound if the key doesn't exist.
func (txn *Txn) Get(tree *Tree, key []byte) ([]byte, error) {
	if err := txn.usable(); err != nil {
		return nil, err
	}
	if err := validateKey(tree, key); err != nil {
		return nil, err
	}
	primary, err := txn.treeBucket(tree)
	if err != nil {
		return nil, err
	}
	v := primary.Get(key)
	if v == nil {
		return nil, treeErrf(tree.name, "", NotFound, nil, "key %x", key)
	}
	return v, nil
}

// Exists reports whether a key is present.
func (txn *Txn) Exists(tree *Tree, key []byte) (bool, error) {
	if err := txn.usable(); err != nil {
		return false, err
	}
	if err := validateKey(tree, key); err != nil {
		return false, err
	}
	primary, err := txn.treeBucket(tree)
	if err != nil {
		return false, err
	}
	return primary.Get(key) != nil, nil
}

// GetMany retrieves a batch of keys in one transaction; the result
// holds nil for keys that don't exist. Views follow the same lifetime
// rule as Get.
func (txn *Txn) GetMany(tree *Tree, keys [][]byte) ([][]byte, error) {
	if err := txn.usable(); err != nil {
		return nil, err
	}
	primary, err := txn.treeBucket(tree)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, len(keys))
	for i, key := range keys {
		if err := validateKey(tree, key); err != nil {
			return nil, err
		}
		values[i] = primary.Get(key)
	}
	return values, nil
}

// ExistsMany reports presence for a batch of keys.
func (txn *Txn) ExistsMany(tree *Tree, keys [][]byte) ([]bool, error) {
	if err := txn.usable(); err != nil {
		return nil, err
	}
	primary, err := txn.treeBucket(tree)
	if err != nil {
		return nil, err
	}
	found := make([]bool, len(keys))
	for i, key := range keys {
		if err := validateKey(tree, key); err != nil {
			return nil, err
		}
		found[i] = primary.Get(key) != nil
	}
	return found, nil
}

// Get is the auto-transaction variant; it returns an owned copy of the
// value.
func (t *Tree) Get(key []byte) ([]byte, error) {
	var out []byte
	err := t.db.View(func(txn *Txn) error {
		v, err := txn.Get(t, key)
		if err != nil {
			return err
		}
		out = slices.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exists is the auto-transaction variant.
func (t *Tree) Exists(key []byte) (bool, error) {
	var found bool
	err := t.db.View(func(txn *Txn) error {
		var err error
		found, err = txn.Exists(t, key)
		return err
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
