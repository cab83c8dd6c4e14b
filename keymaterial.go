// keymaterial.go: Secret byte sequences held in guarded memory.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"fmt"
	"runtime"
)

// noCopy makes go vet's copylocks check flag accidental copies of values
// that own guarded memory.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// KeyMaterial is a length-tagged secret held in a guarded region.
//
// KeyMaterial is always handled through a pointer and must never be copied.
// Its bytes leave the region only through CopyBytes. Destroy wipes and
// releases the region; if a KeyMaterial becomes unreachable without being
// destroyed, the region is released by a runtime cleanup.
//
// KeyMaterial is not safe for concurrent use.
type KeyMaterial struct {
	_ noCopy

	p         *Primitives
	region    *Region
	size      int
	cleanup   runtime.Cleanup
	destroyed bool
}

// NewKeyMaterial generates size bytes of random key material.
func NewKeyMaterial(p *Primitives, size int) *KeyMaterial {
	requireToken(p)
	p.precondition(size >= 0, "key material size must not be negative, got %d", size)

	km := newKeyMaterial(p, size)
	p.Random.Fill(km.region.data)
	p.Memory.Protect(km.region, ReadOnly)
	return km
}

// CaptureKeyMaterial moves buf into new key material of len(buf) bytes.
// buf is zeroed by the call.
//
// Example:
//
//	raw := loadKey()
//	km, err := kleidi.CaptureKeyMaterial(p, raw)
//	// raw is all zeros from here on
func CaptureKeyMaterial(p *Primitives, buf []byte) (*KeyMaterial, error) {
	return captureBounded(p, buf, 0, -1)
}

// captureBounded captures buf if minSize <= len(buf) <= maxSize (maxSize < 0
// means unbounded). On a size mismatch buf is left untouched and no key
// material is created; once the size is accepted buf is zeroed on every
// exit path.
func captureBounded(p *Primitives, buf []byte, minSize, maxSize int) (*KeyMaterial, error) {
	requireToken(p)
	if len(buf) < minSize || (maxSize >= 0 && len(buf) > maxSize) {
		return nil, invalidSize(len(buf), minSize, maxSize)
	}
	defer Zeroize(buf)

	km := newKeyMaterial(p, len(buf))
	copy(km.region.data, buf)
	p.Memory.Protect(km.region, ReadOnly)
	return km, nil
}

// newKeyMaterial allocates a Writable region and attaches the cleanup.
func newKeyMaterial(p *Primitives, size int) *KeyMaterial {
	region := p.Memory.Allocate(size)
	km := &KeyMaterial{
		p:      p,
		region: region,
		size:   size,
	}
	km.cleanup = runtime.AddCleanup(km, releaseRegion, region)
	return km
}

// releaseRegion must not reference the KeyMaterial it cleans up after.
func releaseRegion(r *Region) {
	if !r.freed {
		r.mem.Free(r)
	}
}

// SizeInBytes returns the size of the secret.
func (km *KeyMaterial) SizeInBytes() int {
	return km.size
}

// CopyBytes returns a plain copy of the secret. This is the only way the
// bytes leave guarded memory; the caller should Zeroize the copy when done.
// Calling CopyBytes after Destroy is fatal.
func (km *KeyMaterial) CopyBytes() []byte {
	out := make([]byte, km.size)
	km.withBytes(func(b []byte) {
		copy(out, b)
	})
	return out
}

// IsEqual compares two secrets in constant time. Secrets of different
// sizes are unequal without comparing content: sizes are not secret.
// Use IsFingerprintEqual where lengths must not be branched on.
func (km *KeyMaterial) IsEqual(other *KeyMaterial) bool {
	if other == nil {
		return false
	}
	km.live()
	other.live()
	if km.size != other.size {
		return false
	}
	equal := km.p.Memory.Compare(km.region, other.region, km.size)
	runtime.KeepAlive(km)
	runtime.KeepAlive(other)
	return equal
}

// Fingerprint returns a fixed-size, non-secret digest of the secret.
func (km *KeyMaterial) Fingerprint() Fingerprint {
	var f Fingerprint
	km.withBytes(func(b []byte) {
		f = km.p.GenericHash.fingerprint(b)
	})
	return f
}

// IsFingerprintEqual compares the fingerprints of two secrets. Both
// digests have the same size whatever the secret lengths, so this is the
// comparison to use across lengths and for set or map membership. Distinct
// secrets are assumed to have distinct fingerprints.
func (km *KeyMaterial) IsFingerprintEqual(other *KeyMaterial) bool {
	if other == nil {
		return false
	}
	return km.Fingerprint() == other.Fingerprint()
}

// Conceal makes the region inaccessible until the next read, which opens
// it for the duration of that read only.
func (km *KeyMaterial) Conceal() {
	km.live()
	if km.region.mode != NoAccess {
		km.p.Memory.Protect(km.region, NoAccess)
	}
}

// Destroy wipes and releases the region. Further use of the key material
// is fatal; Destroy itself may be called more than once.
func (km *KeyMaterial) Destroy() {
	if km == nil || km.destroyed {
		return
	}
	km.cleanup.Stop()
	km.p.Memory.Free(km.region)
	km.destroyed = true
	km.region = nil
}

// IsDestroyed reports whether Destroy has been called.
func (km *KeyMaterial) IsDestroyed() bool {
	return km.destroyed
}

// String never includes secret bytes.
func (km *KeyMaterial) String() string {
	if km.destroyed {
		return "KeyMaterial(destroyed)"
	}
	return fmt.Sprintf("KeyMaterial(%d bytes)", km.size)
}

// withBytes runs fn with a readable view of the region.
func (km *KeyMaterial) withBytes(fn func([]byte)) {
	km.live()
	km.region.withReadable(fn)
	runtime.KeepAlive(km)
}

func (km *KeyMaterial) live() {
	requireToken(km.p)
	if km.destroyed {
		km.p.fatal(ErrCodeFatalMemory, "use of destroyed key material")
	}
}
