// dontdump_linux.go: Core dump exclusion for guarded regions.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import "golang.org/x/sys/unix"

// dontDump excludes b from core dumps. Older kernels reject the advice;
// the region is still guarded without it.
func dontDump(b []byte) {
	_ = unix.Madvise(b, unix.MADV_DONTDUMP)
}
