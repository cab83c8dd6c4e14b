// keyutils.go: Hex conversion and zeroization helpers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"crypto/subtle"
	"encoding/hex"
	"runtime"
	"strings"
)

// Zeroize overwrites b with zeros in place.
//
// Example:
//
//	raw := km.CopyBytes()
//	defer kleidi.Zeroize(raw)
//
//go:noinline
func Zeroize(b []byte) {
	clearBuffer(b)
	runtime.KeepAlive(b)
}

// ConstantTimeEqual reports whether a and b hold the same bytes. For
// equal lengths the time taken does not depend on the contents.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// BytesToHex encodes b as lowercase hexadecimal.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// HexToBytes decodes hexadecimal digits from s. Characters listed in ignore
// are skipped between bytes, so "de:ad:be:ef" decodes with ignore ":".
// Decoding stops at the first other character, or at an ignored character
// inside a byte; a trailing lone digit is dropped.
func HexToBytes(s string, ignore string) []byte {
	out := make([]byte, 0, len(s)/2)
	var (
		high    byte
		pending bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		v, ok := hexValue(c)
		if !ok {
			if !pending && ignore != "" && strings.IndexByte(ignore, c) >= 0 {
				continue
			}
			break
		}
		if !pending {
			high = v
			pending = true
			continue
		}
		out = append(out, high<<4|v)
		pending = false
	}
	return out
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// CaptureKeyMaterialHex decodes s with HexToBytes and captures the result.
// The decoded bytes are staged in a wiped buffer; s itself, being a Go
// string, cannot be wiped.
func CaptureKeyMaterialHex(p *Primitives, s string, ignore string) (*KeyMaterial, error) {
	requireToken(p)
	decoded := HexToBytes(s, ignore)
	defer Zeroize(decoded)
	return CaptureKeyMaterial(p, decoded)
}
