// dontdump_other.go: No core dump exclusion outside linux.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package kleidi

func dontDump(b []byte) {}
