// keyring.go: Versioned master keys with zero-downtime rotation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kleidi

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// Key status constants
const (
	StatusPending    = "pending"    // Generated, not yet used for new data
	StatusValidating = "validating" // Passed the rotation round trip
	StatusActive     = "active"     // Used for new derivations and encryption
	StatusDeprecated = "deprecated" // Kept for decrypting older data
	StatusRevoked    = "revoked"    // Key material destroyed
)

// rotationSubkeyID is the subkey used by Keyring.Encrypt and Keyring.Decrypt.
const rotationSubkeyID = 1

var validationContext = MustContext("kr-check")

// MasterKeyVersion is one version of a master key held by a Keyring.
// Versions returned by Keyring methods are snapshots: they carry no key
// material and do not follow later status changes.
type MasterKeyVersion struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	Purpose   string    `json:"purpose"`

	key *MasterKey
}

// Keyring manages master key versions. It is safe for concurrent use.
type Keyring struct {
	p           *Primitives
	mu          sync.RWMutex
	active      *MasterKeyVersion
	pending     *MasterKeyVersion
	previous    *MasterKeyVersion
	versions    map[string]*MasterKeyVersion
	maxVersions int
	lastVersion int
	closed      bool
}

// NewKeyring creates an empty keyring keeping at most 10 versions.
func NewKeyring(p *Primitives) *Keyring {
	requireToken(p)
	return &Keyring{
		p:           p,
		versions:    make(map[string]*MasterKeyVersion),
		maxVersions: 10,
	}
}

// NewKeyringWithOptions creates a keyring keeping at most maxVersions versions.
func NewKeyringWithOptions(p *Primitives, maxVersions int) *Keyring {
	kr := NewKeyring(p)
	p.precondition(maxVersions > 0, "maxVersions must be positive, got %d", maxVersions)
	kr.maxVersions = maxVersions
	return kr
}

// Generate creates a new pending master key version.
func (kr *Keyring) Generate(purpose string) (*MasterKeyVersion, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if err := kr.openLocked(); err != nil {
		return nil, err
	}
	return kr.generateLocked(purpose).metadata(), nil
}

func (kr *Keyring) generateLocked(purpose string) *MasterKeyVersion {
	id := kr.p.Random.Bytes(8)
	version := &MasterKeyVersion{
		ID:        fmt.Sprintf("mk_%x", id),
		Version:   kr.nextVersion(),
		CreatedAt: timecache.CachedTime().UTC(),
		Status:    StatusPending,
		Purpose:   purpose,
		key:       NewMasterKey(kr.p),
	}
	kr.versions[version.ID] = version

	kr.p.logger.Debug().
		Str("key_id", version.ID).
		Int("version", version.Version).
		Str("purpose", purpose).
		Msg("master key generated")
	return version
}

// Activate makes keyID the active master key. The previously active key
// is deprecated and stays available for decryption. The key of a rotation
// in progress can only be activated once ValidateRotation accepted it.
func (kr *Keyring) Activate(keyID string) error {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if err := kr.openLocked(); err != nil {
		return err
	}

	version, exists := kr.versions[keyID]
	if !exists {
		return keyNotFound(keyID)
	}

	if version.Status == StatusRevoked {
		richErr := goerrors.New(ErrCodeKeyInactive, fmt.Sprintf("cannot activate revoked key %s", keyID))
		return fmt.Errorf("key revoked: %w", richErr)
	}

	if version == kr.pending {
		if version.Status != StatusValidating {
			richErr := goerrors.New(ErrCodeKeyRotation, fmt.Sprintf("pending key %s has not been validated", keyID))
			return fmt.Errorf("rotation not validated: %w", richErr)
		}
		kr.pending = nil
	}

	kr.promoteLocked(version)
	kr.cleanupOldVersions()
	return nil
}

// promoteLocked assumes the mutex is held
func (kr *Keyring) promoteLocked(version *MasterKeyVersion) {
	if kr.active != nil && kr.active != version {
		kr.previous = kr.active
		kr.active.Status = StatusDeprecated
	}
	version.Status = StatusActive
	kr.active = version

	kr.p.logger.Debug().
		Str("key_id", version.ID).
		Int("version", version.Version).
		Msg("master key activated")
}

// Rotate generates and immediately activates a new master key.
func (kr *Keyring) Rotate(purpose string) (*MasterKeyVersion, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if err := kr.openLocked(); err != nil {
		return nil, err
	}

	version := kr.generateLocked(purpose)
	kr.promoteLocked(version)
	kr.cleanupOldVersions()
	return version.metadata(), nil
}

// PrepareRotation generates a new master key in pending state without
// touching the active one.
func (kr *Keyring) PrepareRotation(purpose string) (*MasterKeyVersion, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if err := kr.openLocked(); err != nil {
		return nil, err
	}

	if kr.pending != nil {
		richErr := goerrors.New(ErrCodeKeyRotation, "rotation already in progress")
		return nil, fmt.Errorf("rotation in progress: %w", richErr)
	}

	kr.pending = kr.generateLocked(purpose)
	return kr.pending.metadata(), nil
}

// ValidateRotation checks that the pending key can seal and open data
// through a derived secret key.
func (kr *Keyring) ValidateRotation() error {
	return kr.validatePending("")
}

func (kr *Keyring) validatePending(keyID string) error {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if err := kr.openLocked(); err != nil {
		return err
	}

	pending, err := kr.pendingLocked(keyID, "no pending master key to validate")
	if err != nil {
		return fmt.Errorf("no pending key: %w", err)
	}

	testData := []byte("zero-downtime-validation-test-data")

	testKey := pending.key.DeriveSecretKey(rotationSubkeyID, validationContext)
	defer testKey.Destroy()

	box := NewSecretBox(kr.p, testKey)
	decrypted, err := box.Decrypt(box.Encrypt(testData))
	if err != nil {
		kr.revokeLocked(pending)
		kr.pending = nil
		richErr := goerrors.Wrap(err, ErrCodeKeyValidation, "failed to decrypt test data")
		return fmt.Errorf("master key validation failed: %w", richErr)
	}
	if !ConstantTimeEqual(decrypted, testData) {
		kr.revokeLocked(pending)
		kr.pending = nil
		richErr := goerrors.New(ErrCodeKeyValidation, "decrypted data does not match original")
		return fmt.Errorf("master key validation failed: %w", richErr)
	}

	pending.Status = StatusValidating
	return nil
}

// CommitRotation activates the validated pending key.
func (kr *Keyring) CommitRotation() error {
	_, err := kr.commitPending("")
	return err
}

func (kr *Keyring) commitPending(keyID string) (*MasterKeyVersion, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if err := kr.openLocked(); err != nil {
		return nil, err
	}

	pending, err := kr.pendingLocked(keyID, "no validated pending master key to commit")
	if err != nil || pending.Status != StatusValidating {
		richErr := goerrors.New(ErrCodeKeyRotation, "no validated pending master key to commit")
		return nil, fmt.Errorf("no validated key to commit: %w", richErr)
	}

	kr.promoteLocked(pending)
	kr.pending = nil
	kr.cleanupOldVersions()
	return pending.metadata(), nil
}

// RollbackRotation revokes the pending key and abandons the rotation.
func (kr *Keyring) RollbackRotation() error {
	return kr.rollbackPending("")
}

func (kr *Keyring) rollbackPending(keyID string) error {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if err := kr.openLocked(); err != nil {
		return err
	}

	pending, err := kr.pendingLocked(keyID, "no rotation in progress to rollback")
	if err != nil {
		return fmt.Errorf("no rotation to rollback: %w", err)
	}
	if pending == kr.active {
		kr.pending = nil
		richErr := goerrors.New(ErrCodeKeyRotation, "pending master key is already active")
		return fmt.Errorf("cannot rollback active key: %w", richErr)
	}

	kr.revokeLocked(pending)
	kr.pending = nil
	return nil
}

// pendingLocked returns the rotation in progress. A non-empty keyID must
// name it.
func (kr *Keyring) pendingLocked(keyID, missing string) (*MasterKeyVersion, error) {
	if kr.pending == nil || (keyID != "" && kr.pending.ID != keyID) {
		return nil, goerrors.New(ErrCodeKeyRotation, missing)
	}
	return kr.pending, nil
}

// RotateZeroDowntime runs prepare, validate and commit, rolling back on failure.
func (kr *Keyring) RotateZeroDowntime(purpose string) (*MasterKeyVersion, error) {
	prepared, err := kr.PrepareRotation(purpose)
	if err != nil {
		return nil, fmt.Errorf("preparation failed: %w", err)
	}

	if err := kr.validatePending(prepared.ID); err != nil {
		_ = kr.rollbackPending(prepared.ID)
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	committed, err := kr.commitPending(prepared.ID)
	if err != nil {
		_ = kr.rollbackPending(prepared.ID)
		return nil, fmt.Errorf("commit failed: %w", err)
	}

	return committed, nil
}

// Current returns the active master key version.
func (kr *Keyring) Current() (*MasterKeyVersion, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	if err := kr.openLocked(); err != nil {
		return nil, err
	}
	current, err := kr.currentLocked()
	if err != nil {
		return nil, err
	}
	return current.metadata(), nil
}

func (kr *Keyring) currentLocked() (*MasterKeyVersion, error) {
	if kr.active == nil {
		richErr := goerrors.New(ErrCodeKeyNotFound, "no active master key")
		return nil, fmt.Errorf("no active key: %w", richErr)
	}
	if kr.active.Status != StatusActive {
		richErr := goerrors.New(ErrCodeKeyInactive, "current master key is not active")
		return nil, fmt.Errorf("key inactive: %w", richErr)
	}
	return kr.active, nil
}

// ByID returns a master key version that has not been revoked.
func (kr *Keyring) ByID(keyID string) (*MasterKeyVersion, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	if err := kr.openLocked(); err != nil {
		return nil, err
	}
	version, err := kr.byIDLocked(keyID)
	if err != nil {
		return nil, err
	}
	return version.metadata(), nil
}

func (kr *Keyring) byIDLocked(keyID string) (*MasterKeyVersion, error) {
	version, exists := kr.versions[keyID]
	if !exists {
		return nil, keyNotFound(keyID)
	}
	if version.Status == StatusRevoked {
		richErr := goerrors.New(ErrCodeKeyInactive, fmt.Sprintf("key %s is revoked", keyID))
		return nil, fmt.Errorf("key revoked: %w", richErr)
	}
	return version, nil
}

// List returns metadata copies of every version, oldest first. The copies
// carry no key material.
func (kr *Keyring) List() []*MasterKeyVersion {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	versions := make([]*MasterKeyVersion, 0, len(kr.versions))
	for _, version := range kr.versions {
		versions = append(versions, version.metadata())
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version < versions[j].Version
	})
	return versions
}

// Revoke destroys the key material of keyID. The active key cannot be revoked.
func (kr *Keyring) Revoke(keyID string) error {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if err := kr.openLocked(); err != nil {
		return err
	}

	version, exists := kr.versions[keyID]
	if !exists {
		return keyNotFound(keyID)
	}

	if kr.active != nil && kr.active.ID == keyID {
		richErr := goerrors.New(ErrCodeKeyRotation, "cannot revoke current active master key - rotate first")
		return fmt.Errorf("cannot revoke active key: %w", richErr)
	}

	if kr.pending == version {
		kr.pending = nil
	}
	if kr.previous == version {
		kr.previous = nil
	}
	kr.revokeLocked(version)
	return nil
}

func (kr *Keyring) revokeLocked(version *MasterKeyVersion) {
	version.Status = StatusRevoked
	if version.key != nil {
		version.key.Destroy()
		version.key = nil
	}
	kr.p.logger.Debug().Str("key_id", version.ID).Msg("master key revoked")
}

// DeriveKey derives a subkey from the active master key and returns it with
// the ID of the master key it came from.
func (kr *Keyring) DeriveKey(id uint64, context Context, size int) (*DerivedKey, string, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	if err := kr.openLocked(); err != nil {
		return nil, "", err
	}

	current, err := kr.currentLocked()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current master key: %w", err)
	}
	return current.key.Derive(size, id, context), current.ID, nil
}

// Encrypt seals plaintext under a secret key derived from the active master
// key in context. The returned key ID is needed by Decrypt.
func (kr *Keyring) Encrypt(context Context, plaintext []byte) (*AuthenticatedCiphertext, string, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	if err := kr.openLocked(); err != nil {
		return nil, "", err
	}

	current, err := kr.currentLocked()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current master key: %w", err)
	}

	key := current.key.DeriveSecretKey(rotationSubkeyID, context)
	defer key.Destroy()
	return NewSecretBox(kr.p, key).Encrypt(plaintext), current.ID, nil
}

// Decrypt opens ac with the master key keyID, which may be deprecated.
func (kr *Keyring) Decrypt(keyID string, context Context, ac *AuthenticatedCiphertext) ([]byte, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	if err := kr.openLocked(); err != nil {
		return nil, err
	}

	version, err := kr.byIDLocked(keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get master key %s: %w", keyID, err)
	}

	key := version.key.DeriveSecretKey(rotationSubkeyID, context)
	defer key.Destroy()
	return NewSecretBox(kr.p, key).Decrypt(ac)
}

// ExportMetadata serializes the keyring state without any key material.
func (kr *Keyring) ExportMetadata() ([]byte, error) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	exportData := struct {
		Versions    map[string]*MasterKeyVersion `json:"versions"`
		Current     string                       `json:"current,omitempty"`
		Previous    string                       `json:"previous,omitempty"`
		MaxVersions int                          `json:"max_versions"`
	}{
		Versions:    make(map[string]*MasterKeyVersion, len(kr.versions)),
		MaxVersions: kr.maxVersions,
	}

	for id, version := range kr.versions {
		exportData.Versions[id] = version.metadata()
	}
	if kr.active != nil {
		exportData.Current = kr.active.ID
	}
	if kr.previous != nil {
		exportData.Previous = kr.previous.ID
	}

	return json.Marshal(exportData)
}

// Close destroys every master key. Further use returns an error.
func (kr *Keyring) Close() error {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if kr.closed {
		return nil
	}
	for _, version := range kr.versions {
		if version.key != nil {
			version.key.Destroy()
			version.key = nil
		}
	}
	kr.active, kr.pending, kr.previous = nil, nil, nil
	kr.closed = true
	kr.p.logger.Debug().Int("versions", len(kr.versions)).Msg("keyring closed")
	return nil
}

func (kr *Keyring) openLocked() error {
	if kr.closed {
		richErr := goerrors.New(ErrCodeKeyringClosed, "keyring is closed")
		return fmt.Errorf("%w: %w", ErrDestroyed, richErr)
	}
	return nil
}

// nextVersion never reuses a number, even after cleanup dropped versions
func (kr *Keyring) nextVersion() int {
	kr.lastVersion++
	return kr.lastVersion
}

// cleanupOldVersions enforces maxVersions. Revoked versions go first, then
// the oldest deprecated ones are revoked and dropped. The active, previous
// and pending versions are never touched, nor are versions from Generate
// that were never activated.
func (kr *Keyring) cleanupOldVersions() {
	if len(kr.versions) <= kr.maxVersions {
		return
	}
	for id, version := range kr.versions {
		if version.Status == StatusRevoked {
			delete(kr.versions, id)
		}
	}

	var deprecated []*MasterKeyVersion
	for _, version := range kr.versions {
		if version.Status == StatusDeprecated && version != kr.previous {
			deprecated = append(deprecated, version)
		}
	}
	sort.Slice(deprecated, func(i, j int) bool {
		return deprecated[i].Version < deprecated[j].Version
	})
	for _, version := range deprecated {
		if len(kr.versions) <= kr.maxVersions {
			return
		}
		kr.revokeLocked(version)
		delete(kr.versions, version.ID)
	}
}

func (v *MasterKeyVersion) metadata() *MasterKeyVersion {
	return &MasterKeyVersion{
		ID:        v.ID,
		Version:   v.Version,
		CreatedAt: v.CreatedAt,
		Status:    v.Status,
		Purpose:   v.Purpose,
	}
}

func keyNotFound(keyID string) error {
	richErr := goerrors.New(ErrCodeKeyNotFound, fmt.Sprintf("key ID %s not found", keyID))
	return fmt.Errorf("key not found: %w", richErr)
}
