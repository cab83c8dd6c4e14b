// guarded.go: Guarded memory regions with explicit protection transitions.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"crypto/subtle"
)

// ProtectionMode is the access state of a guarded region.
type ProtectionMode int

const (
	// NoAccess makes the region unreadable and unwritable.
	NoAccess ProtectionMode = iota
	// ReadOnly is the resting state of constructed key material.
	ReadOnly
	// Writable is the state right after allocation and during wiping.
	Writable
)

// String returns the mode name.
func (m ProtectionMode) String() string {
	switch m {
	case NoAccess:
		return "no-access"
	case ReadOnly:
		return "read-only"
	case Writable:
		return "writable"
	default:
		return "invalid"
	}
}

// Region is a fixed-size allocation of protection-capable memory. On unix
// platforms it lives outside the Go heap, between two inaccessible guard
// pages, and is locked against swapping when the platform allows it.
//
// A Region has exactly one owner. It is not safe for concurrent use: the
// protection mode is shared mutable state.
type Region struct {
	mapping []byte // whole allocation including guard pages; nil on the heap backend
	inner   []byte // page-aligned span whose protection is toggled
	data    []byte // the caller-visible bytes, right-aligned in inner
	size    int
	mode    ProtectionMode
	locked  bool
	freed   bool
	mem     *GuardedMemory
}

// Size returns the number of usable bytes.
func (r *Region) Size() int {
	return r.size
}

// Mode returns the current protection mode.
func (r *Region) Mode() ProtectionMode {
	return r.mode
}

// Locked reports whether the region is locked into physical memory.
func (r *Region) Locked() bool {
	return r.locked
}

// GuardedMemory is the only code that touches guarded regions.
type GuardedMemory struct {
	p *Primitives
}

// Allocate reserves size bytes of guarded memory. The region starts out
// Writable. Allocation failure is fatal.
func (m *GuardedMemory) Allocate(size int) *Region {
	m.p.precondition(size >= 0, "allocation size must not be negative, got %d", size)

	r, err := mapRegion(size)
	if err != nil {
		m.p.fatal(ErrCodeFatalMemory, "guarded allocation of %d bytes failed: %v", size, err)
	}
	r.mem = m
	return r
}

// Protect moves a region to mode. Transitioning to the mode the region is
// already in is a programmer error and is fatal, as is any platform failure.
func (m *GuardedMemory) Protect(r *Region, mode ProtectionMode) {
	m.live(r)
	m.p.precondition(mode >= NoAccess && mode <= Writable, "invalid protection mode %d", int(mode))
	if r.mode == mode {
		m.p.fatal(ErrCodeFatalProtection, "region is already %s", mode)
	}
	if err := protectRegion(r, mode); err != nil {
		m.p.fatal(ErrCodeFatalProtection, "transition %s -> %s failed: %v", r.mode, mode, err)
	}
	r.mode = mode
}

// Wipe overwrites the first amount bytes of the region with zeros. The
// previous protection mode is restored afterwards.
func (m *GuardedMemory) Wipe(r *Region, amount int) {
	m.live(r)
	m.p.precondition(amount >= 0 && amount <= r.size, "wipe amount %d out of range [0, %d]", amount, r.size)
	if amount == 0 {
		return
	}
	r.withWritable(func(b []byte) {
		Zeroize(b[:amount])
	})
}

// Compare reports whether the first amount bytes of a and b are equal. The
// running time depends only on amount.
func (m *GuardedMemory) Compare(a, b *Region, amount int) bool {
	m.live(a)
	m.live(b)
	m.p.precondition(amount >= 0 && amount <= a.size && amount <= b.size,
		"compare amount %d exceeds region sizes %d and %d", amount, a.size, b.size)

	var equal bool
	a.withReadable(func(x []byte) {
		b.withReadable(func(y []byte) {
			equal = subtle.ConstantTimeCompare(x[:amount], y[:amount]) == 1
		})
	})
	return equal
}

// Free wipes the whole region and releases it. Freeing a region twice is fatal.
func (m *GuardedMemory) Free(r *Region) {
	m.live(r)
	if r.mode != Writable {
		m.Protect(r, Writable)
	}
	Zeroize(r.data)
	if err := unmapRegion(r); err != nil {
		m.p.fatal(ErrCodeFatalMemory, "releasing guarded region failed: %v", err)
	}
	r.freed = true
	r.data = nil
	r.inner = nil
	r.mapping = nil
}

func (m *GuardedMemory) live(r *Region) {
	m.p.precondition(r != nil, "nil region")
	if r.freed {
		m.p.fatal(ErrCodeFatalMemory, "use of freed guarded region")
	}
}

// withReadable runs fn with a readable view of the region. A NoAccess region
// is opened for the duration of fn and closed again on every exit path.
// The view must not escape fn.
func (r *Region) withReadable(fn func([]byte)) {
	r.mem.live(r)
	if r.mode == NoAccess {
		r.mem.Protect(r, ReadOnly)
		defer r.mem.Protect(r, NoAccess)
	}
	fn(r.data)
}

// withWritable runs fn with a writable view of the region and restores the
// previous mode afterwards.
func (r *Region) withWritable(fn func([]byte)) {
	r.mem.live(r)
	if prev := r.mode; prev != Writable {
		r.mem.Protect(r, Writable)
		defer r.mem.Protect(r, prev)
	}
	fn(r.data)
}

func roundUp(n, multiple int) int {
	return (n + multiple - 1) / multiple * multiple
}
