// pwhash.go: Argon2id password hashing into storable strings.
//
// Storable strings use the PHC format
//
//	$argon2id$v=19$m=<memory KiB>,t=<passes>,p=<lanes>$<salt>$<hash>
//
// with unpadded standard base64 for salt and hash.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/argon2"
)

// Password hashing parameters.
const (
	PasswordSaltSize    = 16
	PasswordHashSize    = 32
	passwordHashPrefix  = "$argon2id$"
	passwordHashLanes   = 1
	maxVerifyMemoryKiB  = 4 * 1024 * 1024 // 4 GiB
	maxVerifyPasses     = 1 << 16
	minStoredSaltSize   = 8
	minStoredHashSize   = 16
	maxStoredHashSize   = 64
	maxStorableStrBytes = 128
)

// Complexity selects the CPU cost of password hashing. Only the
// enumerated profiles are accepted.
type Complexity int

const (
	// ComplexityInteractive suits online logins.
	ComplexityInteractive Complexity = iota
	// ComplexityModerate suits logins that may take a second.
	ComplexityModerate
	// ComplexitySensitive suits rarely derived, highly sensitive secrets.
	ComplexitySensitive
)

// Memory selects the memory cost of password hashing. Only the enumerated
// profiles are accepted.
type Memory int

const (
	// MemoryInteractive uses 64 MiB.
	MemoryInteractive Memory = iota
	// MemoryModerate uses 256 MiB.
	MemoryModerate
	// MemorySensitive uses 1 GiB.
	MemorySensitive
)

// String returns the profile name.
func (c Complexity) String() string {
	switch c {
	case ComplexityInteractive:
		return "interactive"
	case ComplexityModerate:
		return "moderate"
	case ComplexitySensitive:
		return "sensitive"
	default:
		return "invalid"
	}
}

// String returns the profile name.
func (m Memory) String() string {
	switch m {
	case MemoryInteractive:
		return "interactive"
	case MemoryModerate:
		return "moderate"
	case MemorySensitive:
		return "sensitive"
	default:
		return "invalid"
	}
}

// opsLimit returns the Argon2 pass count, or 0 for an unknown profile.
func (c Complexity) opsLimit() uint32 {
	switch c {
	case ComplexityInteractive:
		return 2
	case ComplexityModerate:
		return 3
	case ComplexitySensitive:
		return 4
	default:
		return 0
	}
}

// memLimitKiB returns the Argon2 memory in KiB, or 0 for an unknown profile.
func (m Memory) memLimitKiB() uint32 {
	switch m {
	case MemoryInteractive:
		return 64 * 1024
	case MemoryModerate:
		return 256 * 1024
	case MemorySensitive:
		return 1024 * 1024
	default:
		return 0
	}
}

// PasswordHash creates and checks storable password strings.
type PasswordHash struct {
	p *Primitives
}

// StorableString hashes password with a fresh random salt. Unknown profiles
// are fatal. Argon2 allocates the full memory profile on the Go heap; if
// that allocation fails the runtime terminates the process.
func (h *PasswordHash) StorableString(password []byte, complexity Complexity, memory Memory) string {
	ops, mem := complexity.opsLimit(), memory.memLimitKiB()
	h.p.precondition(ops != 0, "unknown complexity profile %d", int(complexity))
	h.p.precondition(mem != 0, "unknown memory profile %d", int(memory))

	salt := h.p.Random.Bytes(PasswordSaltSize)
	key := argon2.IDKey(password, salt, ops, mem, passwordHashLanes, PasswordHashSize)
	defer Zeroize(key)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		passwordHashPrefix, argon2.Version, mem, ops, passwordHashLanes,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

// IsVerifying reports whether password matches storable. A malformed
// storable string never verifies.
func (h *PasswordHash) IsVerifying(storable string, password []byte) bool {
	params, err := parseStorable(storable)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey(password, params.salt, params.passes, params.memoryKiB, params.lanes, uint32(len(params.hash))) // #nosec G115 -- hash length bounded by parseStorable
	defer Zeroize(candidate)

	return subtle.ConstantTimeCompare(candidate, params.hash) == 1
}

// NeedsRehash reports whether storable was produced with parameters other
// than the given profiles.
func (h *PasswordHash) NeedsRehash(storable string, complexity Complexity, memory Memory) bool {
	ops, mem := complexity.opsLimit(), memory.memLimitKiB()
	h.p.precondition(ops != 0, "unknown complexity profile %d", int(complexity))
	h.p.precondition(mem != 0, "unknown memory profile %d", int(memory))

	params, err := parseStorable(storable)
	if err != nil {
		return true
	}
	return params.passes != ops || params.memoryKiB != mem || params.lanes != passwordHashLanes ||
		len(params.salt) != PasswordSaltSize || len(params.hash) != PasswordHashSize
}

type storableParams struct {
	memoryKiB uint32
	passes    uint32
	lanes     uint8
	salt      []byte
	hash      []byte
}

func malformedHash(msg string) error {
	return fmt.Errorf("%w: %w", ErrMalformedHash, goerrors.New(ErrCodeMalformedHash, msg))
}

// parseStorable validates a storable string and bounds its parameters so a
// hostile string cannot demand unbounded work during verification.
func parseStorable(s string) (*storableParams, error) {
	if len(s) > maxStorableStrBytes {
		return nil, malformedHash("storable string too long")
	}
	if !strings.HasPrefix(s, passwordHashPrefix) {
		return nil, malformedHash("not an argon2id storable string")
	}

	fields := strings.Split(s[len(passwordHashPrefix):], "$")
	if len(fields) != 4 {
		return nil, malformedHash("wrong number of fields")
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, malformedHash("unsupported argon2 version")
	}

	var (
		params storableParams
		lanes  uint32
	)
	if n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &params.memoryKiB, &params.passes, &lanes); err != nil || n != 3 {
		return nil, malformedHash("malformed parameters")
	}
	if fmt.Sprintf("m=%d,t=%d,p=%d", params.memoryKiB, params.passes, lanes) != fields[1] {
		return nil, malformedHash("non-canonical parameters")
	}
	if params.passes < 1 || params.passes > maxVerifyPasses {
		return nil, malformedHash("pass count out of range")
	}
	if lanes < 1 || lanes > 255 {
		return nil, malformedHash("lane count out of range")
	}
	params.lanes = uint8(lanes) // #nosec G115 -- bounded above
	if params.memoryKiB < 8*lanes || params.memoryKiB > maxVerifyMemoryKiB {
		return nil, malformedHash("memory out of range")
	}

	var err error
	if params.salt, err = base64.RawStdEncoding.Strict().DecodeString(fields[2]); err != nil || len(params.salt) < minStoredSaltSize {
		return nil, malformedHash("malformed salt")
	}
	if params.hash, err = base64.RawStdEncoding.Strict().DecodeString(fields[3]); err != nil ||
		len(params.hash) < minStoredHashSize || len(params.hash) > maxStoredHashSize {
		return nil, malformedHash("malformed hash")
	}
	return &params, nil
}
