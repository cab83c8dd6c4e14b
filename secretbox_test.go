// secretbox_test.go: Authenticated encryption tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/secretbox"
)

// TestSymmetric_DetachedMatchesCombined verifies the detached layout
func TestSymmetric_DetachedMatchesCombined(t *testing.T) {
	p := newTestPrimitives(t)

	key := sequence(0, SecretKeySize)
	var nonce [NonceSize]byte
	copy(nonce[:], sequence(100, NonceSize))
	plaintext := []byte("attack at dawn")

	mac, ciphertext := p.Symmetric.Encrypt(plaintext, &nonce, key)
	assert.Len(t, mac, MACSize)
	assert.Len(t, ciphertext, len(plaintext))

	combined := secretbox.Seal(nil, plaintext, &nonce, (*[SecretKeySize]byte)(key))
	assert.Equal(t, combined, append(append([]byte(nil), mac...), ciphertext...))

	opened, ok := p.Symmetric.Decrypt(ciphertext, mac, &nonce, key)
	require.True(t, ok)
	assert.Equal(t, plaintext, opened)
}

// TestSymmetric_Tampering verifies that any modified byte fails authentication
func TestSymmetric_Tampering(t *testing.T) {
	p := newTestPrimitives(t)

	key := sequence(0, SecretKeySize)
	var nonce [NonceSize]byte
	plaintext := []byte("Hello, World!")
	mac, ciphertext := p.Symmetric.Encrypt(plaintext, &nonce, key)

	for i := range ciphertext {
		tampered := append([]byte(nil), ciphertext...)
		tampered[i] ^= 0x01
		out, ok := p.Symmetric.Decrypt(tampered, mac, &nonce, key)
		assert.False(t, ok, "ciphertext byte %d", i)
		assert.Nil(t, out)
	}
	for i := range mac {
		tampered := append([]byte(nil), mac...)
		tampered[i] ^= 0x80
		_, ok := p.Symmetric.Decrypt(ciphertext, tampered, &nonce, key)
		assert.False(t, ok, "mac byte %d", i)
	}
}

// TestSymmetric_Preconditions verifies size checks on raw keys and MACs
func TestSymmetric_Preconditions(t *testing.T) {
	p := newTestPrimitives(t)
	var nonce [NonceSize]byte

	assert.Panics(t, func() { p.Symmetric.Encrypt(nil, &nonce, make([]byte, 16)) })
	assert.Panics(t, func() { p.Symmetric.Encrypt(nil, nil, make([]byte, SecretKeySize)) })
	assert.Panics(t, func() { p.Symmetric.Decrypt(nil, make([]byte, 15), &nonce, make([]byte, SecretKeySize)) })
}

// TestSecretBox_RoundTrip verifies encryption with guarded keys
func TestSecretBox_RoundTrip(t *testing.T) {
	p := newTestPrimitives(t)
	key := NewSecretKey(p)
	defer key.Destroy()
	box := NewSecretBox(p, key)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"Empty", []byte{}},
		{"Short", []byte("x")},
		{"Text", []byte("Correct Horse Battery Staple")},
		{"Large", sequence(0, 250)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := box.Encrypt(tt.plaintext)
			assert.Len(t, ac.Ciphertext, len(tt.plaintext))

			out, err := box.Decrypt(ac)
			require.NoError(t, err)
			assert.Equal(t, len(tt.plaintext), len(out))
			if len(tt.plaintext) > 0 {
				assert.Equal(t, tt.plaintext, out)
			}
		})
	}

	a := box.Encrypt([]byte("same"))
	b := box.Encrypt([]byte("same"))
	assert.NotEqual(t, a.Nonce, b.Nonce, "every encryption must draw a fresh nonce")
}

// TestSecretBox_Authentication verifies failure reporting
func TestSecretBox_Authentication(t *testing.T) {
	p := newTestPrimitives(t)
	key := NewSecretKey(p)
	other := NewSecretKey(p)
	defer key.Destroy()
	defer other.Destroy()

	box := NewSecretBox(p, key)
	ac := box.Encrypt([]byte("payload"))

	tamper := map[string]func(*AuthenticatedCiphertext){
		"Ciphertext": func(c *AuthenticatedCiphertext) { c.Ciphertext[0] ^= 0x01 },
		"MAC":        func(c *AuthenticatedCiphertext) { c.MAC[3] ^= 0x01 },
		"Nonce":      func(c *AuthenticatedCiphertext) { c.Nonce[23] ^= 0x01 },
	}
	for name, fn := range tamper {
		t.Run(name, func(t *testing.T) {
			c, err := ParseAuthenticatedCiphertext(ac.Bytes())
			require.NoError(t, err)
			fn(c)
			out, err := box.Decrypt(c)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, ErrAuthentication), "got %v", err)
		})
	}

	t.Run("WrongKey", func(t *testing.T) {
		_, err := NewSecretBox(p, other).Decrypt(ac)
		assert.True(t, errors.Is(err, ErrAuthentication))
	})

	t.Run("Nil", func(t *testing.T) {
		_, err := box.Decrypt(nil)
		assert.True(t, errors.Is(err, ErrMalformedCiphertext))
	})
}

// TestSecretBox_EncryptWithNonce verifies deterministic output for a fixed nonce
func TestSecretBox_EncryptWithNonce(t *testing.T) {
	p := newTestPrimitives(t)

	raw := sequence(0, SecretKeySize)
	rawCopy := append([]byte(nil), raw...)
	key, err := CaptureSecretKey(p, raw)
	require.NoError(t, err)
	defer key.Destroy()

	var nonce Nonce
	copy(nonce[:], sequence(50, NonceSize))
	ac := NewSecretBox(p, key).EncryptWithNonce([]byte("fixed"), nonce)

	mac, ct := p.Symmetric.Encrypt([]byte("fixed"), (*[NonceSize]byte)(&nonce), rawCopy)
	assert.Equal(t, mac, ac.MAC[:])
	assert.Equal(t, ct, ac.Ciphertext)
}

// TestAuthenticatedCiphertext_Serialization verifies the wire forms
func TestAuthenticatedCiphertext_Serialization(t *testing.T) {
	p := newTestPrimitives(t)
	key := NewSecretKey(p)
	defer key.Destroy()
	box := NewSecretBox(p, key)

	ac := box.Encrypt([]byte("serialize me"))
	raw := ac.Bytes()
	assert.Len(t, raw, NonceSize+MACSize+len("serialize me"))
	assert.Equal(t, ac.Nonce[:], raw[:NonceSize])
	assert.Equal(t, ac.MAC[:], raw[NonceSize:NonceSize+MACSize])

	parsed, err := ParseAuthenticatedCiphertextBase64(ac.Base64())
	require.NoError(t, err)
	assert.Equal(t, ac, parsed)

	out, err := box.Decrypt(parsed)
	require.NoError(t, err)
	assert.Equal(t, []byte("serialize me"), out)

	t.Run("TooShort", func(t *testing.T) {
		_, err := ParseAuthenticatedCiphertext(raw[:NonceSize+MACSize-1])
		assert.True(t, errors.Is(err, ErrMalformedCiphertext))
	})

	t.Run("BadBase64", func(t *testing.T) {
		_, err := ParseAuthenticatedCiphertextBase64("not base64!!")
		assert.True(t, errors.Is(err, ErrMalformedCiphertext))
	})

	t.Run("InputNotRetained", func(t *testing.T) {
		buf := ac.Bytes()
		parsed, err := ParseAuthenticatedCiphertext(buf)
		require.NoError(t, err)
		buf[len(buf)-1] ^= 0xFF
		assert.Equal(t, ac.Ciphertext, parsed.Ciphertext)
	})
}

// TestCaptureSecretKey_Sizes verifies the capture asymmetry for fixed-size keys
func TestCaptureSecretKey_Sizes(t *testing.T) {
	p := newTestPrimitives(t)

	for _, size := range []int{SecretKeySize - 1, SecretKeySize + 1} {
		buf := sequence(1, size)
		key, err := CaptureSecretKey(p, buf)
		assert.Nil(t, key)
		assert.True(t, errors.Is(err, ErrInvalidSize))
		assert.Equal(t, sequence(1, size), buf, "size %d: rejected buffer must not be wiped", size)
	}

	buf := sequence(1, SecretKeySize)
	key, err := CaptureSecretKey(p, buf)
	require.NoError(t, err)
	defer key.Destroy()
	assert.True(t, isZero(buf))
}

// TestNewSecretBox_NilKey verifies the precondition on the key
func TestNewSecretBox_NilKey(t *testing.T) {
	p := newTestPrimitives(t)
	assert.Panics(t, func() { NewSecretBox(p, nil) })
}
