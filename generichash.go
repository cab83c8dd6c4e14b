// generichash.go: BLAKE2b generic hashing, hash keys and fingerprints.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Generic hash size bounds in bytes.
const (
	GenericHashMinOutputSize     = 16
	GenericHashMaxOutputSize     = blake2b.Size
	GenericHashDefaultOutputSize = blake2b.Size256

	GenericHashMinKeySize     = 16
	GenericHashMaxKeySize     = blake2b.Size
	GenericHashDefaultKeySize = 32
)

// GenericHash computes BLAKE2b digests, optionally keyed.
type GenericHash struct {
	p *Primitives
}

// Sum hashes input into outputSize bytes. key may be nil for an unkeyed
// hash. Sizes outside the documented bounds are fatal.
func (g *GenericHash) Sum(input []byte, outputSize int, key []byte) []byte {
	g.p.precondition(outputSize >= GenericHashMinOutputSize && outputSize <= GenericHashMaxOutputSize,
		"hash output size %d out of range [%d, %d]", outputSize, GenericHashMinOutputSize, GenericHashMaxOutputSize)
	g.p.precondition(key == nil || (len(key) >= GenericHashMinKeySize && len(key) <= GenericHashMaxKeySize),
		"hash key size %d out of range [%d, %d]", len(key), GenericHashMinKeySize, GenericHashMaxKeySize)

	h, err := blake2b.New(outputSize, key)
	if err != nil {
		g.p.fatal(ErrCodeFatalPrecondition, "blake2b rejected parameters: %v", err)
	}
	h.Write(input)
	return h.Sum(nil)
}

// SumWithKey hashes input with a guarded hash key. The key bytes are read
// in place and never copied out of their region.
func (g *GenericHash) SumWithKey(input []byte, outputSize int, key *HashKey) []byte {
	g.p.precondition(key != nil, "nil hash key")
	var out []byte
	key.withBytes(func(k []byte) {
		out = g.Sum(input, outputSize, k)
	})
	return out
}

// HashKey is key material for keyed generic hashing.
type HashKey struct {
	*KeyMaterial
}

// NewHashKey generates a hash key of GenericHashDefaultKeySize bytes.
func NewHashKey(p *Primitives) *HashKey {
	return NewHashKeyOfSize(p, GenericHashDefaultKeySize)
}

// NewHashKeyOfSize generates a hash key of the given size.
func NewHashKeyOfSize(p *Primitives, size int) *HashKey {
	requireToken(p)
	p.precondition(size >= GenericHashMinKeySize && size <= GenericHashMaxKeySize,
		"hash key size %d out of range [%d, %d]", size, GenericHashMinKeySize, GenericHashMaxKeySize)
	return &HashKey{NewKeyMaterial(p, size)}
}

// CaptureHashKey captures and wipes buf as a hash key.
func CaptureHashKey(p *Primitives, buf []byte) (*HashKey, error) {
	km, err := captureBounded(p, buf, GenericHashMinKeySize, GenericHashMaxKeySize)
	if err != nil {
		return nil, err
	}
	return &HashKey{km}, nil
}

// FingerprintSize is the size of a Fingerprint in bytes.
const FingerprintSize = GenericHashDefaultOutputSize

// Fingerprint is a one-way digest of key material. It is not secret and
// is comparable, so it can be used as a map key.
type Fingerprint [FingerprintSize]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

func (g *GenericHash) fingerprint(secret []byte) Fingerprint {
	var f Fingerprint
	copy(f[:], g.Sum(secret, FingerprintSize, nil))
	return f
}
