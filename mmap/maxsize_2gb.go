//go:build 386 || arm || ppc

package mmap

// MaxSize is the largest map size this architecture supports.
const MaxSize = 0x7FFFFFFF // 2GB
