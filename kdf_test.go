// kdf_test.go: Subkey derivation tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

// TestContext verifies context construction
func TestContext(t *testing.T) {
	c, err := NewContext("sessions")
	require.NoError(t, err)
	assert.Equal(t, "sessions", c.String())

	for _, s := range []string{"", "short", "too-long-context"} {
		_, err := NewContext(s)
		assert.True(t, errors.Is(err, ErrInvalidContext), "%q: got %v", s, err)
	}

	assert.Panics(t, func() { MustContext("nope") })
	assert.NotPanics(t, func() { MustContext("12345678") })
}

// TestKeyDerivationDerive verifies the raw derivation against BLAKE2b
func TestKeyDerivationDerive(t *testing.T) {
	p := newTestPrimitives(t)
	master := sequence(0, MasterKeySize)
	ctx := MustContext("sessions")

	sub := make([]byte, 32)
	p.KDF.Derive(sub, 7, ctx, master)

	h, err := blake2b.New(32, master)
	require.NoError(t, err)
	h.Write([]byte("sessions"))
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], 7)
	h.Write(id[:])
	assert.Equal(t, h.Sum(nil), sub)

	assert.Panics(t, func() { p.KDF.Derive(make([]byte, DerivedKeyMinSize-1), 1, ctx, master) })
	assert.Panics(t, func() { p.KDF.Derive(make([]byte, DerivedKeyMaxSize+1), 1, ctx, master) })
	assert.Panics(t, func() { p.KDF.Derive(sub, 1, ctx, master[:16]) })
}

// TestMasterKeyDerive verifies subkey separation and determinism
func TestMasterKeyDerive(t *testing.T) {
	p := newTestPrimitives(t)

	raw := sequence(3, MasterKeySize)
	master, err := CaptureMasterKey(p, append([]byte(nil), raw...))
	require.NoError(t, err)
	defer master.Destroy()

	ctxA := MustContext("contextA")
	ctxB := MustContext("contextB")

	a1 := master.Derive(32, 1, ctxA)
	a1again := master.Derive(32, 1, ctxA)
	a2 := master.Derive(32, 2, ctxA)
	b1 := master.Derive(32, 1, ctxB)
	long := master.Derive(DerivedKeyMaxSize, 1, ctxA)
	for _, k := range []*DerivedKey{a1, a1again, a2, b1, long} {
		defer k.Destroy()
	}

	assert.Equal(t, uint64(1), a1.ID())
	assert.Equal(t, ctxA, a1.Context())
	assert.Equal(t, DerivedKeyMaxSize, long.SizeInBytes())
	assert.Equal(t, ReadOnly, a1.region.Mode())

	assert.True(t, a1.IsEqual(a1again.KeyMaterial), "derivation must be deterministic")
	assert.False(t, a1.IsEqual(a2.KeyMaterial), "subkey ids must separate keys")
	assert.False(t, a1.IsEqual(b1.KeyMaterial), "contexts must separate keys")
	assert.False(t, a1.IsFingerprintEqual(long.KeyMaterial))

	want := make([]byte, 32)
	p.KDF.Derive(want, 1, ctxA, raw)
	got := a1.CopyBytes()
	defer Zeroize(got)
	assert.Equal(t, want, got)

	assert.Panics(t, func() { master.Derive(DerivedKeyMinSize-1, 1, ctxA) })
	assert.Panics(t, func() { master.Derive(DerivedKeyMaxSize+1, 1, ctxA) })
}

// TestMasterKeyDerive_Concealed verifies derivation from a concealed master key
func TestMasterKeyDerive_Concealed(t *testing.T) {
	p := newTestPrimitives(t)
	master := NewMasterKey(p)
	defer master.Destroy()

	master.Conceal()
	sub := master.DeriveSecretKey(1, MustContext("secretbx"))
	defer sub.Destroy()

	assert.Equal(t, SecretKeySize, sub.SizeInBytes())
	assert.Equal(t, NoAccess, master.region.Mode(), "derivation must not leave the master key open")
}

// TestCaptureMasterKey_WrongSize verifies that rejected buffers keep their content
func TestCaptureMasterKey_WrongSize(t *testing.T) {
	p := newTestPrimitives(t)

	for _, size := range []int{MasterKeySize - 1, MasterKeySize + 1} {
		buf := sequence(5, size)
		mk, err := CaptureMasterKey(p, buf)
		assert.Nil(t, mk)
		assert.True(t, errors.Is(err, ErrInvalidSize))
		assert.Equal(t, sequence(5, size), buf)
	}
}
