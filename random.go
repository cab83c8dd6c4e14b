// random.go: Secure random byte and number generation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"encoding/binary"
	"io"
)

// Random generates cryptographically secure random data. A failing source
// is fatal: there is no safe way to continue without randomness.
type Random struct {
	p      *Primitives
	source io.Reader
}

// Fill overwrites b with random bytes.
func (r *Random) Fill(b []byte) {
	if len(b) == 0 {
		return
	}
	if _, err := io.ReadFull(r.source, b); err != nil {
		r.p.fatal(ErrCodeFatalRandom, "random source failed: %v", err)
	}
}

// Bytes returns count random bytes.
func (r *Random) Bytes(count int) []byte {
	r.p.precondition(count >= 0, "random byte count must not be negative, got %d", count)
	b := make([]byte, count)
	r.Fill(b)
	return b
}

// Uint32 returns a random number.
func (r *Random) Uint32() uint32 {
	var buf [4]byte
	r.Fill(buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// Uniform returns a uniformly distributed number in [0, upperBound).
// It returns 0 when upperBound is below 2.
func (r *Random) Uniform(upperBound uint32) uint32 {
	if upperBound < 2 {
		return 0
	}
	// Reject the low values that would bias the modulo: 2^32 mod upperBound.
	threshold := -upperBound % upperBound
	for {
		v := r.Uint32()
		if v >= threshold {
			return v % upperBound
		}
	}
}
