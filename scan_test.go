package treedb

import (
	"fmt"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func fillNumbered(t *testing.T, tree *Tree, n int) {
	t.Helper()
	write(t, tree.DB(), func(txn *Txn) error {
		for i := 1; i <= n; i++ {
			key := fmt.Appendf(nil, "key:%02d", i)
			if err := txn.Insert(tree, key, fmt.Appendf(nil, "value %d", i)); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestScanRange(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	fillNumbered(t, tree, 10)

	var keys []string
	err := tree.ScanRange([]byte("key:03"), []byte("key:07"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("ScanRange failed: %v", err)
	}
	want := []string{"key:03", "key:04", "key:05", "key:06", "key:07"}
	if len(keys) != len(want) {
		t.Fatalf("ScanRange visited %v, wanted %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("ScanRange visited %v, wanted %v", keys, want)
		}
	}

	// Open-ended on both sides.
	var n int
	err = tree.ScanRange(nil, nil, func(k, v []byte) bool {
		n++
		return true
	})
	if err != nil {
		t.Fatalf("ScanRange(full) failed: %v", err)
	}
	if n != 10 {
		t.Fatalf("full scan visited %d, wanted 10", n)
	}
}

func TestScanRangeEarlyStop(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	fillNumbered(t, tree, 10)

	var n int
	err := tree.ScanRange(nil, nil, func(k, v []byte) bool {
		n++
		return n < 3
	})
	if err != nil {
		t.Fatalf("ScanRange failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("visited %d after early stop, wanted 3", n)
	}
}

func TestScanReverse(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	fillNumbered(t, tree, 10)

	var keys []string
	err := tree.ScanReverse([]byte("key:07"), []byte("key:03"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("ScanReverse failed: %v", err)
	}
	want := []string{"key:07", "key:06", "key:05", "key:04", "key:03"}
	if len(keys) != len(want) {
		t.Fatalf("ScanReverse visited %v, wanted %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("ScanReverse visited %v, wanted %v", keys, want)
		}
	}
}

func TestScanReverseUnmatchedBounds(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	fillNumbered(t, tree, 5)

	// startHigh between keys: starts at the last key <= bound.
	var keys []string
	err := tree.ScanReverse([]byte("key:03a"), nil, func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("ScanReverse failed: %v", err)
	}
	if len(keys) != 3 || keys[0] != "key:03" {
		t.Fatalf("ScanReverse from key:03a visited %v", keys)
	}

	// startHigh past the end: starts at the very last key.
	keys = nil
	err = tree.ScanReverse([]byte("zzz"), nil, func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("ScanReverse failed: %v", err)
	}
	if len(keys) != 5 || keys[0] != "key:05" {
		t.Fatalf("ScanReverse from zzz visited %v", keys)
	}
}

func TestScanPrefix(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	mustInsert(t, tree, "app:1", []byte("a"))
	mustInsert(t, tree, "app:2", []byte("b"))
	mustInsert(t, tree, "web:1", []byte("c"))

	var keys []string
	err := tree.ScanPrefix([]byte("app:"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("ScanPrefix failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "app:1" || keys[1] != "app:2" {
		t.Fatalf("ScanPrefix visited %v, wanted [app:1 app:2]", keys)
	}
}

func TestDeleteIf(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, emailIndex())

	mustInsert(t, tree, "u1", user("a@example.com", "", true))
	mustInsert(t, tree, "u2", user("b@example.com", "", false))
	mustInsert(t, tree, "u3", user("c@example.com", "", false))
	mustInsert(t, tree, "u4", user("d@example.com", "", true))

	inactive := func(k, v []byte) bool {
		var m map[string]any
		if err := msgpack.Unmarshal(v, &m); err != nil {
			t.Fatalf("bad record %q: %v", k, err)
		}
		active, _ := m["active"].(bool)
		return !active
	}

	deleted, err := tree.DeleteIf(nil, nil, inactive)
	if err != nil {
		t.Fatalf("DeleteIf failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("DeleteIf = %d, wanted 2", deleted)
	}
	if tree.Count() != 2 {
		t.Fatalf("Count = %d, wanted 2", tree.Count())
	}
	for _, key := range []string{"u2", "u3"} {
		if found, _ := tree.Exists([]byte(key)); found {
			t.Fatalf("%s still present after DeleteIf", key)
		}
	}
	if n := keyCountIn(t, db, "idx:users:email"); n != 2 {
		t.Fatalf("index keycount = %d, wanted 2", n)
	}
	if err := tree.VerifyIndexes(); err != nil {
		t.Fatalf("VerifyIndexes failed: %v", err)
	}
}

func TestDeleteIfRange(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	fillNumbered(t, tree, 10)

	deleted, err := tree.DeleteIf([]byte("key:03"), []byte("key:07"), nil)
	if err != nil {
		t.Fatalf("DeleteIf failed: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("DeleteIf = %d, wanted 5", deleted)
	}
	if tree.Count() != 5 {
		t.Fatalf("Count = %d, wanted 5", tree.Count())
	}
}

func TestCollectRange(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	fillNumbered(t, tree, 10)

	kvs, err := tree.CollectRange([]byte("key:02"), nil, nil, 3)
	if err != nil {
		t.Fatalf("CollectRange failed: %v", err)
	}
	if len(kvs) != 3 || string(kvs[0].Key) != "key:02" || string(kvs[2].Key) != "key:04" {
		t.Fatalf("CollectRange returned wrong window: %v", kvs)
	}

	odd := func(k, v []byte) bool { return int(k[len(k)-1]-'0')%2 == 1 }
	kvs, err = tree.CollectRange(nil, []byte("key:06"), odd, 0)
	if err != nil {
		t.Fatalf("CollectRange failed: %v", err)
	}
	if len(kvs) != 3 {
		t.Fatalf("CollectRange(odd) returned %d entries, wanted 3", len(kvs))
	}
}
