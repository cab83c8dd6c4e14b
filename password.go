// password.go: Passwords and storable password hashes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"fmt"
	"unicode/utf8"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding is the character encoding a password is hashed in. The same
// text in different encodings yields different key material.
type Encoding int

const (
	// UTF8 is the default encoding.
	UTF8 Encoding = iota
	// ASCII rejects any character above U+007F.
	ASCII
	// UTF16LE is little-endian UTF-16 without a byte order mark.
	UTF16LE
	// UTF16BE is big-endian UTF-16 without a byte order mark.
	UTF16BE
	// Latin1 is ISO 8859-1.
	Latin1
	// Windows1252 is the Windows Western European code page.
	Windows1252
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case ASCII:
		return "ascii"
	case UTF16LE:
		return "utf-16le"
	case UTF16BE:
		return "utf-16be"
	case Latin1:
		return "iso-8859-1"
	case Windows1252:
		return "windows-1252"
	default:
		return "invalid"
	}
}

func (e Encoding) encoder() *encoding.Encoder {
	switch e {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
	case Latin1:
		return charmap.ISO8859_1.NewEncoder()
	case Windows1252:
		return charmap.Windows1252.NewEncoder()
	default:
		return nil
	}
}

// Password is key material holding an encoded password.
type Password struct {
	*KeyMaterial
	encoding Encoding
}

// NewPassword encodes s in enc and captures the result. It fails with
// ErrUnencodable when s is not valid UTF-8 or contains a character enc
// cannot represent.
//
// Go strings are immutable, so s itself cannot be wiped. The copies made
// while encoding live in pooled buffers that are wiped on return.
//
// Example:
//
//	pw, err := kleidi.NewPassword(p, "Correct Horse Battery Staple", kleidi.UTF8)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pw.Destroy()
//	hashed := pw.Hash(kleidi.ComplexityInteractive, kleidi.MemoryInteractive)
//	store(hashed.String())
func NewPassword(p *Primitives, s string, enc Encoding) (*Password, error) {
	requireToken(p)
	p.precondition(enc >= UTF8 && enc <= Windows1252, "unknown encoding %d", int(enc))

	if !utf8.ValidString(s) {
		return nil, unencodable(enc, "input is not valid UTF-8")
	}

	staging := getBuffer(len(s))
	defer putBuffer(staging)
	raw := (*staging)[:copy(*staging, s)]

	var encoded []byte
	switch enc {
	case UTF8:
		encoded = raw
	case ASCII:
		for _, c := range raw {
			if c >= utf8.RuneSelf {
				return nil, unencodable(enc, "non-ASCII character")
			}
		}
		encoded = raw
	default:
		// UTF-16 needs at most two bytes per UTF-8 byte; single-byte
		// charsets never grow.
		output := getBuffer(2 * len(raw))
		defer putBuffer(output)
		nDst, nSrc, err := enc.encoder().Transform(*output, raw, true)
		if err != nil {
			return nil, unencodable(enc, err.Error())
		}
		if nSrc != len(raw) {
			return nil, unencodable(enc, "input was not fully encoded")
		}
		encoded = (*output)[:nDst]
	}

	km, err := CaptureKeyMaterial(p, encoded)
	if err != nil {
		return nil, err
	}
	return &Password{KeyMaterial: km, encoding: enc}, nil
}

// NewPasswordUTF8 is NewPassword with UTF8.
func NewPasswordUTF8(p *Primitives, s string) (*Password, error) {
	return NewPassword(p, s, UTF8)
}

func unencodable(enc Encoding, reason string) error {
	richErr := goerrors.New(ErrCodeUnencodable, fmt.Sprintf("password not representable in %s: %s", enc, reason))
	return fmt.Errorf("%w: %w", ErrUnencodable, richErr)
}

// Encoding returns the encoding the password was captured in.
func (pw *Password) Encoding() Encoding {
	return pw.encoding
}

// Hash derives a storable hash of the password using the given profiles.
func (pw *Password) Hash(complexity Complexity, memory Memory) *HashedPassword {
	var storable string
	pw.withBytes(func(b []byte) {
		storable = pw.p.PasswordHash.StorableString(b, complexity, memory)
	})
	return &HashedPassword{p: pw.p, storable: storable}
}

// Verifies reports whether the password matches h.
func (pw *Password) Verifies(h *HashedPassword) bool {
	if h == nil {
		return false
	}
	var ok bool
	pw.withBytes(func(b []byte) {
		ok = pw.p.PasswordHash.IsVerifying(h.storable, b)
	})
	return ok
}

// Equal compares two passwords exactly, in constant time for equal lengths.
func (pw *Password) Equal(other *Password) bool {
	if other == nil {
		return false
	}
	return pw.IsEqual(other.KeyMaterial)
}

// HashedPassword is a storable, ASCII password hash. It holds no password bytes.
type HashedPassword struct {
	p        *Primitives
	storable string
}

// NewHashedPassword wraps a previously stored string. It fails with
// ErrMalformedHash when s is not a well-formed storable string.
func NewHashedPassword(p *Primitives, s string) (*HashedPassword, error) {
	requireToken(p)
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return nil, malformedHash("storable string is not ASCII")
		}
	}
	if _, err := parseStorable(s); err != nil {
		return nil, err
	}
	return &HashedPassword{p: p, storable: s}, nil
}

// String returns the storable string. It is safe to persist as is.
func (h *HashedPassword) String() string {
	return h.storable
}

// IsVerified reports whether password matches h.
func (h *HashedPassword) IsVerified(by *Password) bool {
	if by == nil {
		return false
	}
	return by.Verifies(h)
}

// NeedsRehash reports whether h was produced with other profiles than the
// given ones, so it should be replaced on the next successful login.
func (h *HashedPassword) NeedsRehash(complexity Complexity, memory Memory) bool {
	return h.p.PasswordHash.NeedsRehash(h.storable, complexity, memory)
}
