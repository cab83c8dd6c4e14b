// guarded_heap.go: Heap fallback for platforms without mprotect support.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package kleidi

import "os"

func platformPageSize() int {
	return os.Getpagesize()
}

// mapRegion allocates on the Go heap. The protection state machine is still
// enforced in software, but the bytes are neither guarded nor locked.
func mapRegion(size int) (*Region, error) {
	data := make([]byte, size)
	return &Region{
		inner: data,
		data:  data,
		size:  size,
		mode:  Writable,
	}, nil
}

func protectRegion(r *Region, mode ProtectionMode) error {
	return nil
}

func unmapRegion(r *Region) error {
	return nil
}
