// guarded_mmap.go: mmap backed guarded regions.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build linux || darwin || freebsd || netbsd || openbsd

package kleidi

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func platformPageSize() int {
	return unix.Getpagesize()
}

// mapRegion lays out one allocation as
//
//	[guard page][data pages][guard page]
//
// with the usable bytes pushed against the trailing guard page, so an
// overrun faults immediately.
func mapRegion(size int) (*Region, error) {
	page := pageSize
	if page <= 0 {
		page = platformPageSize()
	}
	innerLen := roundUp(size, page)
	if innerLen == 0 {
		innerLen = page
	}
	total := innerLen + 2*page

	mapping, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	if err := unix.Mprotect(mapping[:page], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mapping)
		return nil, fmt.Errorf("mprotect leading guard page: %w", err)
	}
	if err := unix.Mprotect(mapping[page+innerLen:], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mapping)
		return nil, fmt.Errorf("mprotect trailing guard page: %w", err)
	}

	inner := mapping[page : page+innerLen : page+innerLen]

	// Locking is best effort: RLIMIT_MEMLOCK is often small and the region
	// keeps its other guarantees without it.
	locked := unix.Mlock(inner) == nil
	dontDump(inner)

	return &Region{
		mapping: mapping,
		inner:   inner,
		data:    inner[innerLen-size : innerLen : innerLen],
		size:    size,
		mode:    Writable,
		locked:  locked,
	}, nil
}

func protectRegion(r *Region, mode ProtectionMode) error {
	var prot int
	switch mode {
	case NoAccess:
		prot = unix.PROT_NONE
	case ReadOnly:
		prot = unix.PROT_READ
	case Writable:
		prot = unix.PROT_READ | unix.PROT_WRITE
	default:
		return fmt.Errorf("unknown protection mode %d", int(mode))
	}
	return unix.Mprotect(r.inner, prot)
}

func unmapRegion(r *Region) error {
	if r.locked {
		if err := unix.Munlock(r.inner); err != nil {
			return fmt.Errorf("munlock: %w", err)
		}
		r.locked = false
	}
	if err := unix.Munmap(r.mapping); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
