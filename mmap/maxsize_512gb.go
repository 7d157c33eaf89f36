//go:build mips64 || mips64le

package mmap

// MaxSize is the largest map size this architecture supports.
const MaxSize = 0x8000000000 // 512GB
