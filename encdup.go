package treedb

import (
	"encoding/binary"
	"fmt"
)

// Non-unique index entries are stored as composite keys with an empty
// value, so that one index key can map to many primary keys while the
// engine still sees plain sorted pairs:
//
//	indexKey primaryKey ruvarint(len(indexKey)) ruvarint(2)
//
// The lengths at the end read right-to-left, which keeps the index key
// at the front of the composite so prefix positioning works. Re-putting
// the same (indexKey, primaryKey) pair overwrites the same composite
// and is therefore idempotent.
//
// Unique index entries don't need the framing: they are stored as
// indexKey => primaryKey directly.

func encodeIndexEntry(buf []byte, indexKey, primaryKey []byte) []byte {
	buf = append(buf, indexKey...)
	buf = append(buf, primaryKey...)
	buf = appendRuvarint(buf, uint32(len(indexKey)))
	buf = appendRuvarint(buf, 2)
	return buf
}

func splitIndexEntry(raw []byte) (indexKey, primaryKey []byte, err error) {
	count, rest, err := decodeRuvarint(raw)
	if err != nil {
		return nil, nil, err
	}
	if count != 2 {
		return nil, nil, fmt.Errorf("invalid index entry: %d components", count)
	}
	keyLen, rest, err := decodeRuvarint(rest)
	if err != nil {
		return nil, nil, err
	}
	if int(keyLen) > len(rest) {
		return nil, nil, fmt.Errorf("invalid index entry: key len %d exceeds data len %d", keyLen, len(rest))
	}
	return rest[:keyLen], rest[keyLen:], nil
}

// compositeCompare builds a whole-key comparator for a non-unique index
// bucket out of the index-key comparator and the duplicate (primary
// key) comparator. An operand that does not carry the framing is a raw
// index key (a seek bound): it compares by index key alone and sorts
// before every framed entry of that key, giving SET_RANGE seeks the
// right position.
func compositeCompare(keyCmp, dupCmp Compare) Compare {
	return func(a, b []byte) int {
		ak, ad, aerr := splitIndexEntry(a)
		if aerr != nil {
			ak = a
		}
		bk, bd, berr := splitIndexEntry(b)
		if berr != nil {
			bk = b
		}
		if c := bytesCompare(keyCmp, ak, bk); c != 0 {
			return c
		}
		switch {
		case aerr != nil && berr != nil:
			return 0
		case aerr != nil:
			return -1
		case berr != nil:
			return 1
		}
		return bytesCompare(dupCmp, ad, bd)
	}
}

// Reverse Uvarint is just byte-reversed Uvarint, for right-to-left reading.
func appendRuvarint(buf []byte, v uint32) []byte {
	var vb [binary.MaxVarintLen32]byte
	vn := binary.PutUvarint(vb[:], uint64(v))
	for i := vn - 1; i >= 0; i-- {
		buf = append(buf, vb[i])
	}
	return buf
}

func decodeRuvarint(buf []byte) (uint32, []byte, error) {
	n := len(buf)
	if n == 0 {
		return 0, nil, fmt.Errorf("invalid ruvarint: empty data")
	}
	var vb [binary.MaxVarintLen32]byte
	c := binary.MaxVarintLen32
	if n < c {
		c = n
	}
	for i := 0; i < c; i++ {
		vb[i] = buf[n-i-1]
	}
	v, vn := binary.Uvarint(vb[:c])
	if vn <= 0 {
		return 0, nil, fmt.Errorf("invalid ruvarint in %x", buf)
	}
	return uint32(v), buf[:n-vn], nil
}
