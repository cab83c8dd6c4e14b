// Package kleidi keeps secret key material in guarded memory for its whole
// lifetime and exposes it only through short, scoped views.
//
// The package offers:
//   - Guarded memory regions with explicit no-access, read-only and writable states
//   - Key material that wipes the caller's buffer on capture
//   - Constant-time exact equality and length-independent fingerprint equality
//   - Passwords in several character encodings, hashed with Argon2id
//   - XSalsa20-Poly1305 secret boxes and BLAKE2b key derivation
//   - A versioned keyring with zero-downtime master key rotation
//
// On unix platforms a region is mapped outside the Go heap between two
// inaccessible guard pages, locked against swapping when possible and
// excluded from core dumps on linux.
//
// # Quick Start
//
// Every constructor takes the token returned by Initialize, so nothing can
// run before the process-wide setup is done:
//
//	p, err := kleidi.Initialize()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	key := kleidi.NewSecretKey(p)
//	defer key.Destroy()
//
//	box := kleidi.NewSecretBox(p, key)
//	ac := box.Encrypt([]byte("sensitive data"))
//
//	plaintext, err := box.Decrypt(ac)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(string(plaintext)) // Output: sensitive data
//
// # Capturing Keys
//
// Capturing copies a buffer into guarded memory and zeroes the buffer. When
// the size is rejected the buffer is returned to the caller untouched:
//
//	raw := loadKey()
//	key, err := kleidi.CaptureSecretKey(p, raw)
//	if errors.Is(err, kleidi.ErrInvalidSize) {
//		// raw still holds its bytes
//	}
//
// # Equality
//
// IsEqual compares in constant time and returns false early when the sizes
// differ. IsFingerprintEqual compares BLAKE2b fingerprints and is the only
// check that is safe across different lengths. Fingerprints are comparable
// values and can key a map:
//
//	seen := map[kleidi.Fingerprint]bool{}
//	seen[key.Fingerprint()] = true
//
// # Passwords
//
//	pw, err := kleidi.NewPassword(p, "Correct Horse Battery Staple", kleidi.UTF8)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pw.Destroy()
//
//	hashed := pw.Hash(kleidi.ComplexityInteractive, kleidi.MemoryInteractive)
//	store(hashed.String())
//
// Cost parameters are limited to the Interactive, Moderate and Sensitive
// profiles.
//
// # Error Handling
//
// Recoverable failures wrap one sentinel error such as ErrInvalidSize,
// ErrUnencodable or ErrAuthentication together with a coded
// github.com/agilira/go-errors value. Password verification reports a plain
// bool.
//
// Precondition violations and unexpected provider failures (a failing
// random source, a rejected mprotect, guarded allocation exhaustion) are not
// returned. They are logged on the zerolog logger passed with WithLogger and
// then panic with a coded error.
//
// # Key Rotation
//
//	kr := kleidi.NewKeyring(p)
//	defer kr.Close()
//
//	if _, err := kr.Rotate("vault-master"); err != nil {
//		log.Fatal(err)
//	}
//
//	ctx := kleidi.MustContext("tenant01")
//	ac, keyID, err := kr.Encrypt(ctx, data)
//
//	// Later, without interrupting readers
//	if _, err := kr.RotateZeroDowntime("vault-master"); err != nil {
//		log.Fatal(err)
//	}
//	plaintext, err := kr.Decrypt(keyID, ctx, ac)
//
// Seal and Open do the same with a CBOR record that names its master key:
//
//	record, err := kr.Seal(ctx, data)
//	plaintext, err := kr.Open(record)
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra library
// SPDX-License-Identifier: MPL-2.0
package kleidi
