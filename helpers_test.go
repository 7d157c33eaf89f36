package treedb

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func setup(t *testing.T) *DB {
	t.Helper()
	db, err := Open("", Options{
		Engine:    NewMemEngine(),
		IsTesting: true,
		Logf:      t.Logf,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return db
}

func setupBolt(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), Options{
		IsTesting: true,
		Logf:      t.Logf,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return db
}

func openUsers(t *testing.T, db *DB) *Tree {
	t.Helper()
	tree, err := db.OpenTree("users", TreeOptions{Create: true})
	if err != nil {
		t.Fatalf("OpenTree failed: %v", err)
	}
	t.Cleanup(tree.Close)
	return tree
}

func write(t *testing.T, db *DB, f func(txn *Txn) error) {
	t.Helper()
	if err := db.Update(f); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func read(t *testing.T, db *DB, f func(txn *Txn) error) {
	t.Helper()
	if err := db.View(f); err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

// userRecord marshals with a fixed field order, so equal inputs always
// produce identical bytes and fixtures can be compared bytewise.
type userRecord struct {
	Email    string `msgpack:"email,omitempty"`
	Category string `msgpack:"category,omitempty"`
	Active   bool   `msgpack:"active"`
}

// user encodes a test record the field extractors understand.
func user(email, category string, active bool) []byte {
	raw, err := msgpack.Marshal(&userRecord{Email: email, Category: category, Active: active})
	if err != nil {
		panic(err)
	}
	return raw
}

func emailIndex() *IndexConfig {
	return &IndexConfig{
		Name:      "email",
		Extractor: MsgpackFieldExtractor("email"),
		Unique:    true,
		Sparse:    true,
	}
}

func categoryIndex() *IndexConfig {
	return &IndexConfig{
		Name:      "category",
		Extractor: MsgpackFieldExtractor("category"),
		Sparse:    true,
	}
}

func addIndex(t *testing.T, tree *Tree, cfg *IndexConfig) {
	t.Helper()
	if err := tree.AddIndex(cfg); err != nil {
		t.Fatalf("AddIndex(%s) failed: %v", cfg.Name, err)
	}
}

func mustInsert(t *testing.T, tree *Tree, key string, value []byte) {
	t.Helper()
	if err := tree.Insert([]byte(key), value); err != nil {
		t.Fatalf("Insert(%q) failed: %v", key, err)
	}
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if got := CodeOf(err); got != code {
		t.Fatalf("error code = %s (%v), wanted %s", CodeString(got), err, CodeString(code))
	}
}

func keyCountIn(t *testing.T, db *DB, bucket string) int {
	t.Helper()
	var n int
	read(t, db, func(txn *Txn) error {
		b, err := txn.bucket(bucket)
		if err != nil {
			return err
		}
		n = b.KeyCount()
		return nil
	})
	return n
}
