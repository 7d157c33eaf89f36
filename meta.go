package treedb

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Index descriptors with persistence hooks are recorded in a reserved
// sub-database, one record per (tree, index). The record format is
// little-endian and bit-exact:
//
//	version:u32 | flags:u8 | ud_len:u32 | user_data:bytes[ud_len]
const metaBucketName = "__treedb_index_meta__"

const (
	metaFlagUnique byte = 1 << 0
	metaFlagSparse byte = 1 << 1
)

func metaKey(tree, index string) []byte {
	return []byte(tree + ":" + index)
}

func encodeMetaRecord(buf []byte, version uint32, flags byte, userData []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, version)
	buf = append(buf, flags)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(userData)))
	buf = append(buf, userData...)
	return buf
}

func decodeMetaRecord(data []byte) (version uint32, flags byte, userData []byte, err error) {
	if len(data) < 9 {
		return 0, 0, nil, fmt.Errorf("metadata record too short: %d bytes", len(data))
	}
	version = binary.LittleEndian.Uint32(data)
	flags = data[4]
	udLen := binary.LittleEndian.Uint32(data[5:])
	if int(udLen) != len(data)-9 {
		return 0, 0, nil, fmt.Errorf("metadata record user data length %d does not match record size %d", udLen, len(data))
	}
	return version, flags, data[9:], nil
}

// saveMetadata writes the descriptor's metadata record, creating the
// reserved sub-database on first use.
func saveMetadata(txn *Txn, t *Tree, desc *indexDescriptor) error {
	ud, err := desc.persist.Marshal(desc.userData)
	if err != nil {
		return treeErrf(t.name, desc.name, Generic, err, "serializing index user data")
	}

	metaB, err := txn.etx.CreateBucket(metaBucketName)
	if err != nil {
		return translateEngineErr(err, "creating metadata sub-database")
	}

	record := encodeMetaRecord(nil, t.db.schemaVersion, desc.flags(), ud)
	if err := metaB.Put(metaKey(t.name, desc.name), record); err != nil {
		return translateEngineErr(err, "writing metadata for %s.%s", t.name, desc.name)
	}
	return nil
}

func deleteMetaRecord(txn *Txn, tree, index string) error {
	metaB := txn.etx.Bucket(metaBucketName)
	if metaB == nil {
		return nil
	}
	if err := metaB.Delete(metaKey(tree, index)); err != nil {
		return translateEngineErr(err, "deleting metadata for %s.%s", tree, index)
	}
	return nil
}

// deleteMetaRecords removes every metadata record belonging to a tree.
func deleteMetaRecords(txn *Txn, tree string) error {
	metaB := txn.etx.Bucket(metaBucketName)
	if metaB == nil {
		return nil
	}
	prefix := []byte(tree + ":")
	c := metaB.Cursor()
	k, _ := c.Seek(prefix)
	for k != nil && bytes.HasPrefix(k, prefix) {
		if err := c.Delete(); err != nil {
			return translateEngineErr(err, "deleting metadata records of tree %q", tree)
		}
		k, _ = c.Next()
	}
	return nil
}

// ListPersistedIndexes returns the names of this tree's indexes that
// have a metadata record, whether or not they are currently loaded.
func (t *Tree) ListPersistedIndexes() ([]string, error) {
	var names []string
	err := t.db.View(func(txn *Txn) error {
		metaB := txn.etx.Bucket(metaBucketName)
		if metaB == nil {
			return nil
		}
		prefix := []byte(t.name + ":")
		c := metaB.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			names = append(names, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
