// secretbox.go: Authenticated symmetric encryption (XSalsa20-Poly1305).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"encoding/base64"
	"fmt"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// Secret box sizes in bytes.
const (
	SecretKeySize = 32
	NonceSize     = 24
	MACSize       = secretbox.Overhead
)

// Symmetric is the detached secret box primitive.
type Symmetric struct {
	p *Primitives
}

// Encrypt encrypts plaintext and returns the MAC and the ciphertext
// separately. len(ciphertext) == len(plaintext).
func (s *Symmetric) Encrypt(plaintext []byte, nonce *[NonceSize]byte, key []byte) (mac, ciphertext []byte) {
	s.p.precondition(nonce != nil, "nil nonce")
	s.p.precondition(len(key) == SecretKeySize, "secret box key must be %d bytes, got %d", SecretKeySize, len(key))

	sealed := secretbox.Seal(make([]byte, 0, MACSize+len(plaintext)), plaintext, nonce, (*[SecretKeySize]byte)(key))
	return sealed[:MACSize:MACSize], sealed[MACSize:]
}

// Decrypt verifies and decrypts a detached ciphertext. ok is false when
// authentication fails; no plaintext is returned in that case.
func (s *Symmetric) Decrypt(ciphertext, mac []byte, nonce *[NonceSize]byte, key []byte) (plaintext []byte, ok bool) {
	s.p.precondition(nonce != nil, "nil nonce")
	s.p.precondition(len(mac) == MACSize, "mac must be %d bytes, got %d", MACSize, len(mac))
	s.p.precondition(len(key) == SecretKeySize, "secret box key must be %d bytes, got %d", SecretKeySize, len(key))

	box := make([]byte, 0, MACSize+len(ciphertext))
	box = append(box, mac...)
	box = append(box, ciphertext...)
	return secretbox.Open(make([]byte, 0, len(ciphertext)), box, nonce, (*[SecretKeySize]byte)(key))
}

// SecretKey is key material for SecretBox.
type SecretKey struct {
	*KeyMaterial
}

// NewSecretKey generates a random secret box key.
func NewSecretKey(p *Primitives) *SecretKey {
	return &SecretKey{NewKeyMaterial(p, SecretKeySize)}
}

// CaptureSecretKey captures and wipes buf as a secret box key.
func CaptureSecretKey(p *Primitives, buf []byte) (*SecretKey, error) {
	km, err := captureBounded(p, buf, SecretKeySize, SecretKeySize)
	if err != nil {
		return nil, err
	}
	return &SecretKey{km}, nil
}

// Nonce is a secret box nonce. It is not secret but must never repeat for
// the same key.
type Nonce [NonceSize]byte

// NewNonce returns a random nonce.
func NewNonce(p *Primitives) Nonce {
	requireToken(p)
	var n Nonce
	p.Random.Fill(n[:])
	return n
}

// AuthenticatedCiphertext is the output of SecretBox.Encrypt. Its
// serialized form is nonce || mac || ciphertext.
type AuthenticatedCiphertext struct {
	Nonce      Nonce
	MAC        [MACSize]byte
	Ciphertext []byte
}

// Bytes serializes the ciphertext.
func (ac *AuthenticatedCiphertext) Bytes() []byte {
	out := make([]byte, 0, NonceSize+MACSize+len(ac.Ciphertext))
	out = append(out, ac.Nonce[:]...)
	out = append(out, ac.MAC[:]...)
	return append(out, ac.Ciphertext...)
}

// Base64 returns the serialized ciphertext in standard base64.
func (ac *AuthenticatedCiphertext) Base64() string {
	return base64.StdEncoding.EncodeToString(ac.Bytes())
}

// ParseAuthenticatedCiphertext parses the output of Bytes. b is not retained.
func ParseAuthenticatedCiphertext(b []byte) (*AuthenticatedCiphertext, error) {
	if len(b) < NonceSize+MACSize {
		richErr := goerrors.New(ErrCodeMalformedCipher,
			fmt.Sprintf("ciphertext must be at least %d bytes, got %d", NonceSize+MACSize, len(b)))
		return nil, fmt.Errorf("%w: %w", ErrMalformedCiphertext, richErr)
	}
	ac := &AuthenticatedCiphertext{
		Ciphertext: append([]byte(nil), b[NonceSize+MACSize:]...),
	}
	copy(ac.Nonce[:], b[:NonceSize])
	copy(ac.MAC[:], b[NonceSize:NonceSize+MACSize])
	return ac, nil
}

// ParseAuthenticatedCiphertextBase64 parses the output of Base64.
func ParseAuthenticatedCiphertextBase64(s string) (*AuthenticatedCiphertext, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeBase64Decode, "failed to decode base64 ciphertext")
		return nil, fmt.Errorf("%w: %w", ErrMalformedCiphertext, richErr)
	}
	return ParseAuthenticatedCiphertext(b)
}

// SecretBox encrypts and decrypts with one secret key. It does not own the
// key: destroying the key makes the box unusable.
type SecretBox struct {
	p   *Primitives
	key *SecretKey
}

// NewSecretBox returns a box for key.
//
// Example:
//
//	key := kleidi.NewSecretKey(p)
//	defer key.Destroy()
//	box := kleidi.NewSecretBox(p, key)
//	ac := box.Encrypt([]byte("attack at dawn"))
//	plaintext, err := box.Decrypt(ac)
func NewSecretBox(p *Primitives, key *SecretKey) *SecretBox {
	requireToken(p)
	p.precondition(key != nil && key.KeyMaterial != nil, "nil secret key")
	return &SecretBox{p: p, key: key}
}

// Encrypt encrypts plaintext under a fresh random nonce.
func (b *SecretBox) Encrypt(plaintext []byte) *AuthenticatedCiphertext {
	return b.EncryptWithNonce(plaintext, NewNonce(b.p))
}

// EncryptWithNonce encrypts plaintext under nonce. Reusing a nonce with the
// same key breaks confidentiality.
func (b *SecretBox) EncryptWithNonce(plaintext []byte, nonce Nonce) *AuthenticatedCiphertext {
	ac := &AuthenticatedCiphertext{Nonce: nonce}
	b.key.withBytes(func(k []byte) {
		mac, ciphertext := b.p.Symmetric.Encrypt(plaintext, (*[NonceSize]byte)(&ac.Nonce), k)
		copy(ac.MAC[:], mac)
		ac.Ciphertext = ciphertext
	})
	return ac
}

// Decrypt authenticates and decrypts ac. It returns ErrAuthentication when
// the ciphertext, MAC or nonce was tampered with or the key is wrong.
func (b *SecretBox) Decrypt(ac *AuthenticatedCiphertext) ([]byte, error) {
	if ac == nil {
		richErr := goerrors.New(ErrCodeMalformedCipher, "nil ciphertext")
		return nil, fmt.Errorf("%w: %w", ErrMalformedCiphertext, richErr)
	}

	var (
		plaintext []byte
		ok        bool
	)
	b.key.withBytes(func(k []byte) {
		plaintext, ok = b.p.Symmetric.Decrypt(ac.Ciphertext, ac.MAC[:], (*[NonceSize]byte)(&ac.Nonce), k)
	})
	if !ok {
		richErr := goerrors.New(ErrCodeAuthentication, "ciphertext could not be authenticated")
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, richErr)
	}
	return plaintext, nil
}
