package treedb

import (
	"bytes"
	"testing"
)

func TestIncDec(t *testing.T) {
	b := []byte{0x00, 0x00}
	if !inc(b) || b[0] != 0x00 || b[1] != 0x01 {
		t.Fatalf("inc = %x, wanted 0001", b)
	}
	if !dec(b) || b[0] != 0x00 || b[1] != 0x00 {
		t.Fatalf("dec = %x, wanted 0000", b)
	}
	if dec([]byte{0x00}) {
		t.Fatalf("dec(00) = true, wanted false")
	}
	if inc([]byte{0xFF}) {
		t.Fatalf("inc(FF) = true, wanted false")
	}

	b = []byte{0x01, 0xFF}
	if !inc(b) || !bytes.Equal(b, []byte{0x02, 0x00}) {
		t.Fatalf("inc(01FF) = %x, wanted 0200", b)
	}
}

func TestBytesCompare(t *testing.T) {
	if bytesCompare(nil, []byte("a"), []byte("b")) >= 0 {
		t.Fatalf("default comparator is not bytewise")
	}
	rev := func(a, b []byte) int { return -bytes.Compare(a, b) }
	if bytesCompare(rev, []byte("a"), []byte("b")) <= 0 {
		t.Fatalf("custom comparator not applied")
	}
}
