package treedb

import (
	"bytes"
	"testing"
)

func TestUniqueIndexLookup(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, emailIndex())

	mustInsert(t, tree, "u1", user("foo@example.com", "", true))
	mustInsert(t, tree, "u2", user("bar@example.com", "", true))

	it, err := tree.IndexSeek("email", []byte("bar@example.com"))
	if err != nil {
		t.Fatalf("IndexSeek failed: %v", err)
	}
	defer it.Close()
	if !it.Valid() {
		t.Fatalf("IndexSeek(existing email) found nothing")
	}
	if string(it.MainKey()) != "u2" {
		t.Fatalf("MainKey = %q, wanted u2", it.MainKey())
	}

	missing, err := tree.IndexSeek("email", []byte("nope@example.com"))
	if err != nil {
		t.Fatalf("IndexSeek failed: %v", err)
	}
	defer missing.Close()
	if missing.Valid() {
		t.Fatalf("IndexSeek(missing email) found %q", missing.MainKey())
	}
}

func TestUniqueIndexViolation(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, emailIndex())

	mustInsert(t, tree, "u1", user("foo@example.com", "", true))
	err := tree.Insert([]byte("u2"), user("foo@example.com", "", true))
	wantCode(t, err, IndexError)

	if found, _ := tree.Exists([]byte("u2")); found {
		t.Fatalf("failed insert left the primary record behind")
	}
	if tree.Count() != 1 {
		t.Fatalf("Count = %d, wanted 1", tree.Count())
	}
	if err := tree.VerifyIndexes(); err != nil {
		t.Fatalf("VerifyIndexes failed: %v", err)
	}
}

func TestFailedUpdateRollsBackIndexWork(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, emailIndex())

	mustInsert(t, tree, "u1", user("a@example.com", "", true))
	mustInsert(t, tree, "u2", user("b@example.com", "", true))

	// The update removes u2's old index entry before the unique check
	// fails; the abort must restore it.
	err := tree.Update([]byte("u2"), user("a@example.com", "", true))
	wantCode(t, err, IndexError)

	v, err := tree.Get([]byte("u2"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(v, user("b@example.com", "", true)) {
		t.Fatalf("failed update modified the primary record")
	}
	it, err := tree.IndexSeek("email", []byte("b@example.com"))
	if err != nil {
		t.Fatalf("IndexSeek failed: %v", err)
	}
	defer it.Close()
	if !it.Valid() || string(it.MainKey()) != "u2" {
		t.Fatalf("old index entry not restored after abort")
	}
	if err := tree.VerifyIndexes(); err != nil {
		t.Fatalf("VerifyIndexes failed: %v", err)
	}
}

func TestSparseIndexSkipsMissingField(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, categoryIndex())

	mustInsert(t, tree, "u1", user("a@example.com", "premium", true))
	mustInsert(t, tree, "u2", user("b@example.com", "", true)) // no category
	mustInsert(t, tree, "u3", user("c@example.com", "premium", false))

	if n := keyCountIn(t, db, "idx:users:category"); n != 2 {
		t.Fatalf("index keycount = %d, wanted 2", n)
	}

	var mains []string
	it, err := tree.IndexSeek("category", []byte("premium"))
	if err != nil {
		t.Fatalf("IndexSeek failed: %v", err)
	}
	defer it.Close()
	for it.Valid() && string(it.Key()) == "premium" {
		mains = append(mains, string(it.MainKey()))
		it.Next()
	}
	if len(mains) != 2 || mains[0] != "u1" || mains[1] != "u3" {
		t.Fatalf("premium members = %v, wanted [u1 u3]", mains)
	}
}

func TestNonSparseIndexRequiresKey(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, &IndexConfig{
		Name:      "email",
		Extractor: MsgpackFieldExtractor("email"),
	})

	wantCode(t, tree.Insert([]byte("u1"), user("", "x", true)), IndexError)
	if tree.Count() != 0 {
		t.Fatalf("Count = %d, wanted 0", tree.Count())
	}
}

func TestPopulateIndex(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)

	mustInsert(t, tree, "u1", user("a@example.com", "x", true))
	mustInsert(t, tree, "u2", user("b@example.com", "y", true))

	addIndex(t, tree, emailIndex())
	if n := keyCountIn(t, db, "idx:users:email"); n != 0 {
		t.Fatalf("index keycount before populate = %d, wanted 0", n)
	}

	if err := tree.PopulateIndex("email"); err != nil {
		t.Fatalf("PopulateIndex failed: %v", err)
	}
	if n := keyCountIn(t, db, "idx:users:email"); n != 2 {
		t.Fatalf("index keycount after populate = %d, wanted 2", n)
	}
	if err := tree.VerifyIndexes(); err != nil {
		t.Fatalf("VerifyIndexes failed: %v", err)
	}
}

func TestPopulateIndexAbortsOnViolation(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)

	mustInsert(t, tree, "u1", user("same@example.com", "", true))
	mustInsert(t, tree, "u2", user("same@example.com", "", true))

	addIndex(t, tree, emailIndex())
	wantCode(t, tree.PopulateIndex("email"), IndexError)
	if n := keyCountIn(t, db, "idx:users:email"); n != 0 {
		t.Fatalf("index keycount after failed populate = %d, wanted 0", n)
	}
}

func TestDropIndex(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, categoryIndex())
	mustInsert(t, tree, "u1", user("a@example.com", "x", true))

	if err := tree.DropIndex("category"); err != nil {
		t.Fatalf("DropIndex failed: %v", err)
	}
	if tree.HasIndex("category") {
		t.Fatalf("HasIndex = true after drop")
	}
	wantCode(t, tree.DropIndex("category"), NotFound)

	// Mutations no longer touch the dropped index.
	mustInsert(t, tree, "u2", user("b@example.com", "y", true))
}

func TestNonUniqueIndexCustomOrdering(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, &IndexConfig{
		Name:      "category",
		Extractor: MsgpackFieldExtractor("category"),
		Sparse:    true,
		Compare:   func(a, b []byte) int { return bytes.Compare(b, a) },
	})

	mustInsert(t, tree, "u1", user("a@example.com", "Kitchen", true))
	mustInsert(t, tree, "u2", user("b@example.com", "Attic", true))
	mustInsert(t, tree, "u3", user("c@example.com", "Porch", true))
	mustInsert(t, tree, "u4", user("d@example.com", "Kitchen", true))

	// An exact seek positions on framed entries even though the search
	// key itself carries no framing.
	it, err := tree.IndexSeek("category", []byte("Kitchen"))
	if err != nil {
		t.Fatalf("IndexSeek failed: %v", err)
	}
	defer it.Close()
	if !it.Valid() {
		t.Fatalf("IndexSeek(existing category) found nothing")
	}
	if string(it.Key()) != "Kitchen" || string(it.MainKey()) != "u1" {
		t.Fatalf("IndexSeek = (%q, %q), wanted (Kitchen, u1)", it.Key(), it.MainKey())
	}
	it.Next()
	if !it.Valid() || string(it.MainKey()) != "u4" {
		t.Fatalf("second Kitchen member = %q, wanted u4", it.MainKey())
	}

	// Descending comparator: Porch sorts first, Attic last.
	walk, err := tree.IndexSeekRange("category", []byte("Porch"))
	if err != nil {
		t.Fatalf("IndexSeekRange failed: %v", err)
	}
	defer walk.Close()
	var keys []string
	for walk.Valid() {
		keys = append(keys, string(walk.Key()))
		walk.Next()
	}
	want := []string{"Porch", "Kitchen", "Kitchen", "Attic"}
	if len(keys) != len(want) {
		t.Fatalf("walk = %v, wanted %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("walk = %v, wanted %v", keys, want)
		}
	}

	if err := tree.VerifyIndexes(); err != nil {
		t.Fatalf("VerifyIndexes failed: %v", err)
	}
}

func TestDropIndexToleratesMissingBucket(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, categoryIndex())

	write(t, db, func(txn *Txn) error {
		return txn.etx.DeleteBucket("idx:users:category")
	})

	if err := tree.DropIndex("category"); err != nil {
		t.Fatalf("DropIndex after external bucket loss failed: %v", err)
	}
	if tree.HasIndex("category") {
		t.Fatalf("HasIndex = true after drop")
	}
}

func TestAddIndexRejectsDuplicatesAndBadConfig(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, emailIndex())

	wantCode(t, tree.AddIndex(emailIndex()), InvalidArgument)
	wantCode(t, tree.AddIndex(&IndexConfig{Name: "x"}), InvalidArgument)
	wantCode(t, tree.AddIndex(&IndexConfig{Extractor: MsgpackFieldExtractor("x")}), InvalidArgument)
}

func TestVerifyIndexesDetectsOrphans(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, categoryIndex())
	mustInsert(t, tree, "u1", user("a@example.com", "x", true))

	// Forge an entry pointing at a primary key that does not exist.
	write(t, db, func(txn *Txn) error {
		b, err := txn.bucket("idx:users:category")
		if err != nil {
			return err
		}
		return b.Put(encodeIndexEntry(nil, []byte("x"), []byte("ghost")), emptyIndexValue)
	})

	wantCode(t, tree.VerifyIndexes(), IndexError)
}

func TestIndexMaintenanceAcrossUpdateAndDelete(t *testing.T) {
	db := setup(t)
	tree := openUsers(t, db)
	addIndex(t, tree, emailIndex())
	addIndex(t, tree, categoryIndex())

	mustInsert(t, tree, "u1", user("a@example.com", "x", true))
	if err := tree.Update([]byte("u1"), user("a2@example.com", "y", true)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stale, err := tree.IndexSeek("email", []byte("a@example.com"))
	if err != nil {
		t.Fatalf("IndexSeek failed: %v", err)
	}
	defer stale.Close()
	if stale.Valid() {
		t.Fatalf("stale email entry survived the update")
	}

	if _, err := tree.Delete([]byte("u1")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n := keyCountIn(t, db, "idx:users:email"); n != 0 {
		t.Fatalf("email index keycount = %d, wanted 0", n)
	}
	if n := keyCountIn(t, db, "idx:users:category"); n != 0 {
		t.Fatalf("category index keycount = %d, wanted 0", n)
	}
	if err := tree.VerifyIndexes(); err != nil {
		t.Fatalf("VerifyIndexes failed: %v", err)
	}
}
