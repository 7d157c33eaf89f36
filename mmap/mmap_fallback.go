//go:build !unix

package mmap

import "os"

func mmap(f *os.File, size int, opt Options) ([]byte, error) {
	return nil, ErrUnsupported
}

func munmap(b []byte) error {
	return ErrUnsupported
}

func madvise(b []byte, advice Advice) error {
	return ErrUnsupported
}

func mlock(b []byte) error {
	return ErrUnsupported
}

func munlock(b []byte) error {
	return ErrUnsupported
}
