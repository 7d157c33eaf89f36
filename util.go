package treedb

import "bytes"

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

// inc increments data in place as a big-endian number, for computing
// exclusive upper bounds of prefix ranges. Returns false on overflow
// (all-0xFF input).
func inc(data []byte) bool {
	n := len(data)
	for i := n - 1; i >= 0; i-- {
		if data[i] != 0xFF {
			for j := i; j < n; j++ {
				data[j]++
			}
			return true
		}
	}
	return false
}

func dec(data []byte) bool {
	n := len(data)
	for i := n - 1; i >= 0; i-- {
		if data[i] != 0 {
			for j := i; j < n; j++ {
				data[j]--
			}
			return true
		}
	}
	return false
}

func bytesCompare(cmp Compare, a, b []byte) int {
	if cmp != nil {
		return cmp(a, b)
	}
	return bytes.Compare(a, b)
}
