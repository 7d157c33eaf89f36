package treedb

import (
	"bytes"
	"errors"
)

// Persistence hooks serialize an index's user data into the metadata
// record and reconstitute it on load. Descriptors without a Persistence
// configuration are not persisted at all.
type Persistence struct {
	Marshal   func(userData any) ([]byte, error)
	Unmarshal func(data []byte) (any, error)
}

// IndexConfig describes a secondary index of a tree.
type IndexConfig struct {
	// Name must be unique within the tree; the index sub-database is
	// named idx:<tree>:<name>.
	Name string

	// Extractor computes the index key from a value.
	Extractor Extractor

	// ExtractorID durably names the extractor. When zero, the id is
	// derived from the database schema version and the unique/sparse
	// flag pattern.
	ExtractorID ExtractorID

	// UserData travels with the descriptor (a field path, a schema
	// fragment); persisted through the Persistence hooks when present.
	UserData any

	// Unique rejects two primary keys mapping to the same index key.
	Unique bool

	// Sparse skips entries whose extractor reports no key; non-sparse
	// indexes fail the mutation instead.
	Sparse bool

	// Compare optionally overrides the index-key ordering.
	Compare Compare

	// DupCompare optionally orders the set of primary keys sharing one
	// non-unique index key.
	DupCompare Compare

	// Persistence enables saving the descriptor in the metadata store.
	Persistence *Persistence

	// Cleanup runs against UserData when the index is dropped or the
	// tree handle closes.
	Cleanup func(userData any)
}

type indexDescriptor struct {
	name        string
	bucket      string
	extractor   Extractor
	extractorID ExtractorID
	userData    any
	unique      bool
	sparse      bool
	cmp         Compare
	dupCmp      Compare
	persist     *Persistence
	cleanup     func(userData any)
}

func (desc *indexDescriptor) flags() byte {
	var f byte
	if desc.unique {
		f |= metaFlagUnique
	}
	if desc.sparse {
		f |= metaFlagSparse
	}
	return f
}

func (t *Tree) descriptorFromConfig(cfg *IndexConfig) *indexDescriptor {
	desc := &indexDescriptor{
		name:        cfg.Name,
		bucket:      indexBucketName(t.name, cfg.Name),
		extractor:   cfg.Extractor,
		extractorID: cfg.ExtractorID,
		userData:    cfg.UserData,
		unique:      cfg.Unique,
		sparse:      cfg.Sparse,
		cmp:         cfg.Compare,
		dupCmp:      cfg.DupCompare,
		persist:     cfg.Persistence,
		cleanup:     cfg.Cleanup,
	}
	if desc.extractorID == 0 {
		desc.extractorID = MakeExtractorID(t.db.schemaVersion, uint32(desc.flags()))
	}
	return desc
}

// AddIndex creates an index sub-database and adds the descriptor to the
// catalog. It does not scan existing primary data; the index stays
// empty until PopulateIndex. When persistence hooks are supplied, the
// metadata record is written in the same transaction, so a failure
// rolls everything back.
func (t *Tree) AddIndex(cfg *IndexConfig) error {
	if cfg == nil || cfg.Name == "" {
		return treeErrf(t.name, "", InvalidArgument, nil, "index config missing a name")
	}
	if cfg.Extractor == nil {
		return treeErrf(t.name, cfg.Name, InvalidArgument, nil, "index config missing an extractor")
	}
	if t.indexNamed(cfg.Name) != nil {
		return treeErrf(t.name, cfg.Name, InvalidArgument, nil, "index already exists")
	}
	if err := t.db.acquireSlots(1); err != nil {
		return err
	}

	desc := t.descriptorFromConfig(cfg)

	err := t.db.Update(func(txn *Txn) error {
		b, err := txn.etx.CreateBucket(desc.bucket)
		if err != nil {
			return translateEngineErr(err, "creating index sub-database %q", desc.bucket)
		}

		if cmp := desc.entryCompare(); cmp != nil {
			if err := b.SetCompare(cmp); err != nil {
				return treeErrf(t.name, desc.name, Generic, err, "installing index comparator")
			}
		}

		if desc.persist != nil {
			if err := saveMetadata(txn, t, desc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.db.releaseSlots(1)
		return err
	}

	t.slots++
	t.indexes = append(t.indexes, desc)
	if t.db.verbose {
		t.db.logf("db: ADDIDX %s.%s unique=%v sparse=%v", t.name, desc.name, desc.unique, desc.sparse)
	}
	return nil
}

// entryCompare returns the whole-key comparator for the index
// sub-database, or nil when the default bytewise ordering applies.
func (desc *indexDescriptor) entryCompare() Compare {
	if desc.cmp == nil && desc.dupCmp == nil {
		return nil
	}
	if desc.unique {
		return desc.cmp
	}
	return compositeCompare(desc.cmp, desc.dupCmp)
}

// PopulateIndex builds an index from existing primary entries under a
// single write transaction. All-or-nothing: any failure (including a
// unique violation) aborts and leaves the index empty.
func (t *Tree) PopulateIndex(name string) error {
	desc := t.indexNamed(name)
	if desc == nil {
		return treeErrf(t.name, name, NotFound, nil, "no such index")
	}

	return t.db.Update(func(txn *Txn) error {
		primary, err := txn.treeBucket(t)
		if err != nil {
			return err
		}
		idxB, err := txn.indexBucket(t, desc)
		if err != nil {
			return err
		}

		c := primary.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := putOneIndexEntry(t, desc, idxB, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// DropIndex drops the index sub-database, removes the metadata record
// (if persisted), and removes the descriptor from the catalog.
func (t *Tree) DropIndex(name string) error {
	pos := -1
	for i, desc := range t.indexes {
		if desc.name == name {
			pos = i
			break
		}
	}
	if pos < 0 {
		return treeErrf(t.name, name, NotFound, nil, "no such index")
	}
	desc := t.indexes[pos]

	err := t.db.Update(func(txn *Txn) error {
		if err := txn.etx.DeleteBucket(desc.bucket); err != nil && !errors.Is(err, ErrBucketNotFound) {
			return translateEngineErr(err, "deleting index sub-database %q", desc.bucket)
		}
		if desc.persist != nil {
			if err := deleteMetaRecord(txn, t.name, desc.name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.indexes = append(t.indexes[:pos], t.indexes[pos+1:]...)
	if desc.cleanup != nil {
		desc.cleanup(desc.userData)
	}
	t.slots--
	t.db.releaseSlots(1)
	if t.db.verbose {
		t.db.logf("db: DROPIDX %s.%s", t.name, name)
	}
	return nil
}

// VerifyIndexes is a diagnostic: for every primary record and every
// index it recomputes the extractor key and asserts membership, and for
// every index record it asserts the primary record exists and still
// maps to that index key. Returns IndexError on the first
// inconsistency.
func (t *Tree) VerifyIndexes() error {
	return t.db.View(func(txn *Txn) error {
		return t.verifyIndexes(txn)
	})
}

func (t *Tree) verifyIndexes(txn *Txn) error {
	primary, err := txn.treeBucket(t)
	if err != nil {
		return err
	}

	for _, desc := range t.indexes {
		idxB, err := txn.indexBucket(t, desc)
		if err != nil {
			return err
		}

		c := primary.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ik, ok := desc.extractor(v)
			if !ok {
				if desc.sparse {
					continue
				}
				return treeErrf(t.name, desc.name, IndexError, nil, "extractor returned no key for non-sparse index, primary key %x", k)
			}
			if desc.unique {
				got := idxB.Get(ik)
				if got == nil {
					return treeErrf(t.name, desc.name, IndexError, nil, "missing index entry for primary key %x", k)
				}
				if !bytes.Equal(got, k) {
					return treeErrf(t.name, desc.name, IndexError, nil, "index key %x owned by %x, expected %x", ik, got, k)
				}
			} else {
				entry := encodeIndexEntry(nil, ik, k)
				if idxB.Get(entry) == nil {
					return treeErrf(t.name, desc.name, IndexError, nil, "missing index entry for primary key %x", k)
				}
			}
		}

		ic := idxB.Cursor()
		for ek, ev := ic.First(); ek != nil; ek, ev = ic.Next() {
			var ik, pk []byte
			if desc.unique {
				ik, pk = ek, ev
			} else {
				var err error
				ik, pk, err = splitIndexEntry(ek)
				if err != nil {
					return treeErrf(t.name, desc.name, IndexError, err, "corrupted index entry %x", ek)
				}
			}
			v := primary.Get(pk)
			if v == nil {
				return treeErrf(t.name, desc.name, IndexError, nil, "orphaned index entry: primary key %x does not exist", pk)
			}
			got, ok := desc.extractor(v)
			if !ok || !bytes.Equal(got, ik) {
				return treeErrf(t.name, desc.name, IndexError, nil, "stale index entry %x for primary key %x", ik, pk)
			}
		}
	}
	return nil
}

func (t *Tree) loadPersistedIndexes(txn *Txn, loader IndexLoader) error {
	metaB := txn.etx.Bucket(metaBucketName)
	if metaB == nil {
		return nil
	}

	prefix := []byte(t.name + ":")
	c := metaB.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		indexName := string(k[len(prefix):])

		version, flags, userData, err := decodeMetaRecord(v)
		if err != nil {
			return treeErrf(t.name, indexName, IndexError, err, "corrupted metadata record")
		}
		if version != t.db.schemaVersion {
			return treeErrf(t.name, indexName, IndexError, nil, "metadata version %d does not match schema version %d", version, t.db.schemaVersion)
		}
		unique := flags&metaFlagUnique != 0
		sparse := flags&metaFlagSparse != 0

		cfg, ok := loader(indexName, unique, sparse)
		if !ok {
			continue
		}

		extractorID := cfg.ExtractorID
		if extractorID == 0 {
			extractorID = MakeExtractorID(version, uint32(flags))
		}
		extractor := cfg.Extractor
		if extractor == nil {
			fn, found := t.db.registry.get(extractorID)
			if !found {
				return treeErrf(t.name, indexName, IndexError, nil, "no extractor registered for id %#x", uint64(extractorID))
			}
			extractor = fn
		}

		var ud any = cfg.UserData
		if cfg.Persistence != nil && cfg.Persistence.Unmarshal != nil {
			ud, err = cfg.Persistence.Unmarshal(userData)
			if err != nil {
				return treeErrf(t.name, indexName, IndexError, err, "deserializing index user data")
			}
		}

		bucket := indexBucketName(t.name, indexName)
		if txn.etx.Bucket(bucket) == nil {
			return treeErrf(t.name, indexName, IndexError, nil, "index sub-database is missing")
		}

		if err := t.db.acquireSlots(1); err != nil {
			return err
		}
		t.slots++
		t.indexes = append(t.indexes, &indexDescriptor{
			name:        indexName,
			bucket:      bucket,
			extractor:   extractor,
			extractorID: extractorID,
			userData:    ud,
			unique:      unique,
			sparse:      sparse,
			cmp:         cfg.Compare,
			dupCmp:      cfg.DupCompare,
			persist:     cfg.Persistence,
			cleanup:     cfg.Cleanup,
		})
	}
	return nil
}
