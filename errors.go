// errors.go: Sentinel errors and error codes for recoverable conditions.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"errors"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// Public sentinel errors. Every recoverable failure wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	// ErrInvalidSize is returned when a captured buffer does not have a
	// size accepted by the key type. The buffer is left untouched.
	ErrInvalidSize = errors.New("kleidi: invalid size")

	// ErrUnencodable is returned when a password string cannot be
	// represented in the requested character encoding.
	ErrUnencodable = errors.New("kleidi: string not representable in encoding")

	// ErrAuthentication is returned when an authenticated ciphertext fails
	// verification. No further detail is given.
	ErrAuthentication = errors.New("kleidi: authentication failed")

	// ErrMalformedCiphertext is returned when serialized ciphertext is too
	// short or cannot be decoded.
	ErrMalformedCiphertext = errors.New("kleidi: malformed ciphertext")

	// ErrMalformedHash is returned when a storable password string cannot be parsed.
	ErrMalformedHash = errors.New("kleidi: malformed password hash")

	// ErrInvalidContext is returned when a key derivation context is not
	// exactly ContextSize bytes.
	ErrInvalidContext = errors.New("kleidi: invalid derivation context")

	// ErrDestroyed is returned when an operation needs key material that
	// has already been destroyed.
	ErrDestroyed = errors.New("kleidi: key material destroyed")

	// ErrRandom is returned by Initialize when the random source fails its self test.
	ErrRandom = errors.New("kleidi: random source unavailable")
)

// Error codes for rich error handling
const (
	ErrCodeInvalidSize       = "KLEIDI_INVALID_SIZE"
	ErrCodeUnencodable       = "KLEIDI_UNENCODABLE"
	ErrCodeAuthentication    = "KLEIDI_AUTHENTICATION"
	ErrCodeMalformedCipher   = "KLEIDI_MALFORMED_CIPHERTEXT"
	ErrCodeMalformedHash     = "KLEIDI_MALFORMED_HASH"
	ErrCodeInvalidContext    = "KLEIDI_INVALID_CONTEXT"
	ErrCodeDestroyed         = "KLEIDI_DESTROYED"
	ErrCodeRandom            = "KLEIDI_RANDOM"
	ErrCodeBase64Decode      = "KLEIDI_BASE64_DECODE"
	ErrCodeKeyNotFound       = "KEY_NOT_FOUND"
	ErrCodeKeyInactive       = "KEY_INACTIVE"
	ErrCodeKeyRotation       = "KEY_ROTATION"
	ErrCodeKeyValidation     = "KEY_VALIDATION"
	ErrCodeKeyringClosed     = "KEYRING_CLOSED"
	ErrCodeFatalPrecondition = "FATAL_PRECONDITION"
	ErrCodeFatalMemory       = "FATAL_GUARDED_MEMORY"
	ErrCodeFatalProtection   = "FATAL_PROTECTION"
	ErrCodeFatalRandom       = "FATAL_RANDOM"
)

// invalidSize builds the error returned on a rejected capture.
func invalidSize(got, minSize, maxSize int) error {
	var msg string
	if minSize == maxSize {
		msg = fmt.Sprintf("size must be %d bytes, got %d", minSize, got)
	} else if maxSize < 0 {
		msg = fmt.Sprintf("size must be at least %d bytes, got %d", minSize, got)
	} else {
		msg = fmt.Sprintf("size must be between %d and %d bytes, got %d", minSize, maxSize, got)
	}
	return fmt.Errorf("%w: %w", ErrInvalidSize, goerrors.New(ErrCodeInvalidSize, msg))
}
