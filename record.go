// record.go: Self-describing sealed records for keyring ciphertexts.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"fmt"

	goerrors "github.com/agilira/go-errors"
	"github.com/fxamacker/cbor/v2"
)

// Records use Core Deterministic Encoding so the same record always
// serializes to the same bytes.
var (
	recordEncMode cbor.EncMode
	recordDecMode cbor.DecMode
)

func init() {
	var err error
	recordEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("kleidi: CBOR encoder initialization failed: " + err.Error())
	}
	recordDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("kleidi: CBOR decoder initialization failed: " + err.Error())
	}
}

// sealedRecord is the wire form. Fixed-size fields travel as byte strings
// and are length checked on decode.
type sealedRecord struct {
	KeyID      string `cbor:"1,keyasint"`
	Context    []byte `cbor:"2,keyasint"`
	Nonce      []byte `cbor:"3,keyasint"`
	MAC        []byte `cbor:"4,keyasint"`
	Ciphertext []byte `cbor:"5,keyasint"`
}

// Seal encrypts plaintext with the active master key and returns a CBOR
// record carrying everything Open needs except the key itself.
//
// Example:
//
//	record, err := kr.Seal(kleidi.MustContext("tenant01"), []byte("secret"))
//	// ... rotate any number of times ...
//	plaintext, err := kr.Open(record)
func (kr *Keyring) Seal(context Context, plaintext []byte) ([]byte, error) {
	ac, keyID, err := kr.Encrypt(context, plaintext)
	if err != nil {
		return nil, err
	}

	data, err := recordEncMode.Marshal(&sealedRecord{
		KeyID:      keyID,
		Context:    context[:],
		Nonce:      ac.Nonce[:],
		MAC:        ac.MAC[:],
		Ciphertext: ac.Ciphertext,
	})
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeMalformedCipher, "failed to encode sealed record")
		return nil, fmt.Errorf("seal failed: %w", richErr)
	}
	return data, nil
}

// Open decrypts a record produced by Seal with the master key it names.
// It fails with ErrMalformedCiphertext when the record cannot be decoded
// and with ErrAuthentication when it was tampered with.
func (kr *Keyring) Open(record []byte) ([]byte, error) {
	var rec sealedRecord
	if err := recordDecMode.Unmarshal(record, &rec); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeMalformedCipher, "failed to decode sealed record")
		return nil, fmt.Errorf("%w: %w", ErrMalformedCiphertext, richErr)
	}
	if len(rec.Context) != ContextSize || len(rec.Nonce) != NonceSize || len(rec.MAC) != MACSize {
		richErr := goerrors.New(ErrCodeMalformedCipher, "sealed record field has the wrong size")
		return nil, fmt.Errorf("%w: %w", ErrMalformedCiphertext, richErr)
	}

	var context Context
	copy(context[:], rec.Context)
	ac := &AuthenticatedCiphertext{Ciphertext: rec.Ciphertext}
	copy(ac.Nonce[:], rec.Nonce)
	copy(ac.MAC[:], rec.MAC)

	return kr.Decrypt(rec.KeyID, context, ac)
}
