//go:build unix

package mmap

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func mmap(f *os.File, size int, opt Options) ([]byte, error) {
	prot := syscall.PROT_READ
	if opt.Has(Writable) {
		prot |= syscall.PROT_WRITE
	}

	flags := syscall.MAP_SHARED
	if opt.Has(Prefault) {
		flags |= mapPopulate
	}

	b, err := unix.Mmap(int(f.Fd()), 0, size, prot, flags)
	if err != nil {
		return nil, err
	}

	if opt.Has(SequentialAccess) {
		err = unix.Madvise(b, syscall.MADV_SEQUENTIAL)
		if err != nil && err != syscall.ENOSYS {
			// Ignore not implemented error in kernel because it still works.
			return nil, fmt.Errorf("madvise(MADV_SEQUENTIAL): %w", err)
		}
	} else if opt.Has(RandomAccess) {
		err = unix.Madvise(b, syscall.MADV_RANDOM)
		if err != nil && err != syscall.ENOSYS {
			// Ignore not implemented error in kernel because it still works.
			return nil, fmt.Errorf("madvise(MADV_RANDOM): %w", err)
		}
	}

	return b, nil
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}

func madvise(b []byte, advice Advice) error {
	var adv int
	switch advice {
	case AdviceNormal:
		adv = syscall.MADV_NORMAL
	case AdviceRandom:
		adv = syscall.MADV_RANDOM
	case AdviceSequential:
		adv = syscall.MADV_SEQUENTIAL
	case AdviceWillNeed:
		adv = syscall.MADV_WILLNEED
	case AdviceDontNeed:
		adv = syscall.MADV_DONTNEED
	default:
		return fmt.Errorf("mmap: unknown advice %d", advice)
	}
	err := unix.Madvise(b, adv)
	if err == syscall.ENOSYS {
		return nil
	}
	return err
}

func mlock(b []byte) error {
	return unix.Mlock(b)
}

func munlock(b []byte) error {
	return unix.Munlock(b)
}
