// kdf.go: Subkey derivation from master keys.
//
// Subkeys are BLAKE2b outputs keyed with the master key over the
// derivation context and the little-endian subkey id. Different ids or
// contexts yield independent subkeys; the master key cannot be recovered
// from them.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"encoding/binary"
	"fmt"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/blake2b"
)

// Key derivation sizes in bytes.
const (
	MasterKeySize     = 32
	ContextSize       = 8
	DerivedKeyMinSize = 16
	DerivedKeyMaxSize = 64
)

// KeyDerivation derives subkeys.
type KeyDerivation struct {
	p *Primitives
}

// Derive fills subKey with the subkey number subKeyID of masterKey in the
// given context.
func (k *KeyDerivation) Derive(subKey []byte, subKeyID uint64, context Context, masterKey []byte) {
	k.p.precondition(len(subKey) >= DerivedKeyMinSize && len(subKey) <= DerivedKeyMaxSize,
		"subkey size %d out of range [%d, %d]", len(subKey), DerivedKeyMinSize, DerivedKeyMaxSize)
	k.p.precondition(len(masterKey) == MasterKeySize,
		"master key must be %d bytes, got %d", MasterKeySize, len(masterKey))

	h, err := blake2b.New(len(subKey), masterKey)
	if err != nil {
		k.p.fatal(ErrCodeFatalPrecondition, "blake2b rejected parameters: %v", err)
	}

	var block [ContextSize + 8]byte
	copy(block[:ContextSize], context[:])
	binary.LittleEndian.PutUint64(block[ContextSize:], subKeyID)
	h.Write(block[:])

	// subKey has exactly len(subKey) capacity, so Sum writes in place.
	h.Sum(subKey[:0:len(subKey)])
}

// Context separates subkeys derived for different purposes. It is not secret.
type Context [ContextSize]byte

// NewContext builds a context from exactly ContextSize bytes of s.
func NewContext(s string) (Context, error) {
	var c Context
	if len(s) != ContextSize {
		richErr := goerrors.New(ErrCodeInvalidContext, fmt.Sprintf("context must be %d bytes, got %d", ContextSize, len(s)))
		return c, fmt.Errorf("%w: %w", ErrInvalidContext, richErr)
	}
	copy(c[:], s)
	return c, nil
}

// MustContext is like NewContext but panics on a wrong length. Intended for
// package-level context constants.
func MustContext(s string) Context {
	c, err := NewContext(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the context bytes as a string.
func (c Context) String() string {
	return string(c[:])
}

// MasterKey is the root key from which subkeys are derived.
type MasterKey struct {
	*KeyMaterial
}

// NewMasterKey generates a random master key.
func NewMasterKey(p *Primitives) *MasterKey {
	return &MasterKey{NewKeyMaterial(p, MasterKeySize)}
}

// CaptureMasterKey captures and wipes buf as a master key.
func CaptureMasterKey(p *Primitives, buf []byte) (*MasterKey, error) {
	km, err := captureBounded(p, buf, MasterKeySize, MasterKeySize)
	if err != nil {
		return nil, err
	}
	return &MasterKey{km}, nil
}

// DerivedKey is a subkey derived from a MasterKey.
type DerivedKey struct {
	*KeyMaterial
	id      uint64
	context Context
}

// ID returns the subkey id the key was derived with.
func (d *DerivedKey) ID() uint64 {
	return d.id
}

// Context returns the context the key was derived in.
func (d *DerivedKey) Context() Context {
	return d.context
}

// Derive derives subkey number id of size bytes in context. The subkey is
// written straight into its own guarded region.
//
// Example:
//
//	master := kleidi.NewMasterKey(p)
//	ctx := kleidi.MustContext("sessions")
//	sub := master.Derive(32, 1, ctx)
//	defer sub.Destroy()
func (m *MasterKey) Derive(size int, id uint64, context Context) *DerivedKey {
	return &DerivedKey{
		KeyMaterial: m.deriveInto(size, id, context),
		id:          id,
		context:     context,
	}
}

// DeriveSecretKey derives a subkey sized for SecretBox.
func (m *MasterKey) DeriveSecretKey(id uint64, context Context) *SecretKey {
	return &SecretKey{m.deriveInto(SecretKeySize, id, context)}
}

func (m *MasterKey) deriveInto(size int, id uint64, context Context) *KeyMaterial {
	p := m.p
	p.precondition(size >= DerivedKeyMinSize && size <= DerivedKeyMaxSize,
		"subkey size %d out of range [%d, %d]", size, DerivedKeyMinSize, DerivedKeyMaxSize)

	sub := newKeyMaterial(p, size)
	m.withBytes(func(master []byte) {
		p.KDF.Derive(sub.region.data, id, context, master)
	})
	p.Memory.Protect(sub.region, ReadOnly)
	return sub
}
